// Package storagetest holds the behavior every storage.Driver must share.
// Driver packages call DescribeDriver from their own test suites.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamchat/pkg/storage"
)

// base is a fixed, second-aligned instant so round trips through every
// backend compare equal.
var base = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	profile := func(id, email string) *storage.Profile {
		return &storage.Profile{
			ID:           id,
			Email:        email,
			Username:     "user-" + id,
			PasswordHash: "hash-" + id,
			CreatedAt:    at(0),
			UpdatedAt:    at(0),
		}
	}

	session := func(id, userID string, updated int) *storage.Session {
		return &storage.Session{
			ID:        id,
			UserID:    userID,
			Title:     "New chat",
			CreatedAt: at(0),
			UpdatedAt: at(updated),
		}
	}

	message := func(id, sessionID, role, content string, created int) *storage.Message {
		return &storage.Message{
			ID:        id,
			SessionID: sessionID,
			Role:      role,
			Content:   content,
			CreatedAt: at(created),
		}
	}

	Describe("profiles", func() {
		It("stores and retrieves a profile by id and email", func() {
			Expect(driver.CreateProfile(ctx, profile("p1", "ada@example.com"))).To(Succeed())

			byID, err := driver.GetProfile(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("ada@example.com"))
			Expect(byID.Username).To(Equal("user-p1"))
			Expect(byID.PasswordHash).To(Equal("hash-p1"))
			Expect(byID.CreatedAt).To(BeTemporally("==", at(0)))

			byEmail, err := driver.GetProfileByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal("p1"))
		})

		It("rejects a duplicate email", func() {
			Expect(driver.CreateProfile(ctx, profile("p1", "ada@example.com"))).To(Succeed())

			err := driver.CreateProfile(ctx, profile("p2", "ada@example.com"))
			Expect(err).To(MatchError(storage.ErrConflict))
		})

		It("returns NotFoundError for unknown profiles", func() {
			_, err := driver.GetProfile(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			_, err = driver.GetProfileByEmail(ctx, "nobody@example.com")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("updates username and password hash", func() {
			p := profile("p1", "ada@example.com")
			Expect(driver.CreateProfile(ctx, p)).To(Succeed())

			p.Username = "ada"
			p.PasswordHash = "rotated"
			p.UpdatedAt = at(60)
			Expect(driver.UpdateProfile(ctx, p)).To(Succeed())

			got, err := driver.GetProfile(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Username).To(Equal("ada"))
			Expect(got.PasswordHash).To(Equal("rotated"))
			Expect(got.UpdatedAt).To(BeTemporally("==", at(60)))
		})

		It("fails to update an unknown profile", func() {
			err := driver.UpdateProfile(ctx, profile("ghost", "ghost@example.com"))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("sessions", func() {
		It("lists a user's sessions most recently updated first", func() {
			Expect(driver.CreateSession(ctx, session("s1", "u1", 10))).To(Succeed())
			Expect(driver.CreateSession(ctx, session("s2", "u1", 30))).To(Succeed())
			Expect(driver.CreateSession(ctx, session("s3", "u1", 20))).To(Succeed())
			Expect(driver.CreateSession(ctx, session("other", "u2", 40))).To(Succeed())

			sessions, err := driver.ListSessions(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(sessions))
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
			Expect(ids).To(Equal([]string{"s2", "s3", "s1"}))
		})

		It("returns an empty list for a user without sessions", func() {
			sessions, err := driver.ListSessions(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEmpty())
		})

		It("rejects a duplicate session id", func() {
			Expect(driver.CreateSession(ctx, session("s1", "u1", 0))).To(Succeed())
			Expect(driver.CreateSession(ctx, session("s1", "u1", 0))).To(MatchError(storage.ErrConflict))
		})

		It("renames a session", func() {
			Expect(driver.CreateSession(ctx, session("s1", "u1", 0))).To(Succeed())

			renamed, err := driver.RenameSession(ctx, "s1", "Trip planning", at(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(renamed.Title).To(Equal("Trip planning"))
			Expect(renamed.UpdatedAt).To(BeTemporally("==", at(5)))

			_, err = driver.RenameSession(ctx, "missing", "x", at(5))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("deletes a session together with its messages", func() {
			Expect(driver.CreateSession(ctx, session("s1", "u1", 0))).To(Succeed())
			Expect(driver.AddMessage(ctx, message("m1", "s1", "user", "hi", 1))).To(Succeed())

			Expect(driver.DeleteSession(ctx, "s1")).To(Succeed())

			_, err := driver.GetSession(ctx, "s1")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())

			Expect(storage.IsNotFound(driver.DeleteSession(ctx, "s1"))).To(BeTrue())
		})
	})

	Describe("messages", func() {
		BeforeEach(func() {
			Expect(driver.CreateSession(ctx, session("s1", "u1", 0))).To(Succeed())
		})

		It("lists messages oldest first", func() {
			Expect(driver.AddMessage(ctx, message("m2", "s1", "assistant", "hello", 2))).To(Succeed())
			Expect(driver.AddMessage(ctx, message("m1", "s1", "user", "hi", 1))).To(Succeed())

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].ID).To(Equal("m1"))
			Expect(msgs[0].Role).To(Equal("user"))
			Expect(msgs[1].Content).To(Equal("hello"))
		})

		It("moves the session's updated_at forward", func() {
			Expect(driver.AddMessage(ctx, message("m1", "s1", "user", "hi", 90))).To(Succeed())

			s, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.UpdatedAt).To(BeTemporally("==", at(90)))
		})

		It("rejects a message for an unknown session", func() {
			err := driver.AddMessage(ctx, message("m1", "missing", "user", "hi", 1))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("keeps multibyte content intact", func() {
			Expect(driver.AddMessage(ctx, message("m1", "s1", "assistant", "你好，世界 👋", 1))).To(Succeed())

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs[0].Content).To(Equal("你好，世界 👋"))
		})
	})
}
