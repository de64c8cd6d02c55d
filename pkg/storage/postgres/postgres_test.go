package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/storage/postgres"
	"github.com/papercomputeco/streamchat/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("STREAMCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("STREAMCHAT_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		ctx := context.Background()
		d, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		var res sql.Result
		err = d.Driver.Exec(ctx, "TRUNCATE chat_messages, chat_sessions, profiles", []any{}, &res)
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewDriver", func() {
		It("returns an error for invalid connection string", func() {
			_, err := postgres.NewDriver(context.Background(), "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
			Expect(err).To(HaveOccurred())
			fmt.Fprintf(GinkgoWriter, "expected error: %v\n", err)
		})
	})
})
