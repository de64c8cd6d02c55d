package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamchat/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file", func() {
			data := `version = 0

[storage]
driver = "postgres"
postgres_dsn = "postgres://localhost/streamchat"

[llm]
api_key = "sk-test"
max_tokens = 512
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("postgres"))
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/streamchat"))
			Expect(cfg.LLM.APIKey).To(Equal("sk-test"))
			Expect(cfg.LLM.MaxTokens).To(Equal(512))
		})

		It("loads all config fields", func() {
			data := `version = 0

[storage]
driver = "sqlite"
sqlite_path = "/tmp/chat.sqlite"

[llm]
provider = "openai"
api_url = "https://example.com/v1/chat/completions"
api_key = "sk-all"
model = "qwen-plus"
app_id = "app-1"
temperature = 0.2
max_tokens = 1000
incremental = true
requests_per_second = 2.5
timeout_seconds = 10

[webhook]
url = "https://n8n.example.com/webhook/video"
api_key = "wh-key"
timeout_seconds = 45

[api]
listen = ":9000"

[client]
api_target = "http://chat.internal:9000"
token = "tok"

[auth]
token_ttl_minutes = 60
redis_addr = "localhost:6379"

[eventstream]
provider = "kafka"
brokers = "k1:9092,k2:9092"
topic = "chat.events"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.SQLitePath).To(Equal("/tmp/chat.sqlite"))
			Expect(cfg.LLM).To(Equal(config.LLMConfig{
				Provider:          "openai",
				APIURL:            "https://example.com/v1/chat/completions",
				APIKey:            "sk-all",
				Model:             "qwen-plus",
				AppID:             "app-1",
				Temperature:       0.2,
				MaxTokens:         1000,
				Incremental:       true,
				RequestsPerSecond: 2.5,
				TimeoutSeconds:    10,
			}))
			Expect(cfg.Webhook).To(Equal(config.WebhookConfig{
				URL:            "https://n8n.example.com/webhook/video",
				APIKey:         "wh-key",
				TimeoutSeconds: 45,
			}))
			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.Client.APITarget).To(Equal("http://chat.internal:9000"))
			Expect(cfg.Client.Token).To(Equal("tok"))
			Expect(cfg.Auth.TokenTTLMinutes).To(Equal(60))
			Expect(cfg.Auth.RedisAddr).To(Equal("localhost:6379"))
			Expect(cfg.EventStream).To(Equal(config.EventStreamConfig{
				Provider: "kafka",
				Brokers:  "k1:9092,k2:9092",
				Topic:    "chat.events",
			}))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[llm\nmodel = "), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 7\n"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version 7"))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.LLM.Model = "qwen-max"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("[llm]"))
			Expect(string(data)).To(ContainSubstring(`model = "qwen-max"`))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError(ContainSubstring("nil config")))
		})

		It("writes the file with owner-only permissions", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a string config key", func() {
			Expect(c.SetConfigValue("llm.api_url", "https://example.com/chat")).To(Succeed())

			v, err := c.GetConfigValue("llm.api_url")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("https://example.com/chat"))
		})

		It("sets numeric and boolean keys", func() {
			Expect(c.SetConfigValue("llm.max_tokens", "4096")).To(Succeed())
			Expect(c.SetConfigValue("llm.temperature", "0.25")).To(Succeed())
			Expect(c.SetConfigValue("llm.incremental", "true")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.MaxTokens).To(Equal(4096))
			Expect(cfg.LLM.Temperature).To(Equal(0.25))
			Expect(cfg.LLM.Incremental).To(BeTrue())
		})

		It("returns error for unknown key", func() {
			err := c.SetConfigValue("proxy.upstream", "x")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns error for invalid numeric values", func() {
			Expect(c.SetConfigValue("llm.max_tokens", "lots")).To(MatchError(ContainSubstring("llm.max_tokens")))
			Expect(c.SetConfigValue("webhook.timeout_seconds", "-5")).To(MatchError(ContainSubstring("must not be negative")))
			Expect(c.SetConfigValue("llm.temperature", "warm")).To(HaveOccurred())
		})

		It("validates enumerated keys", func() {
			Expect(c.SetConfigValue("storage.driver", "postgres")).To(Succeed())
			Expect(c.SetConfigValue("storage.driver", "mongo")).To(MatchError(ContainSubstring("storage.driver")))
			Expect(c.SetConfigValue("eventstream.provider", "kafka")).To(Succeed())
			Expect(c.SetConfigValue("eventstream.provider", "nats")).To(HaveOccurred())
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("webhook.url", "https://n8n.example.com/hook")).To(Succeed())
			Expect(c.SetConfigValue("llm.model", "qwen-plus")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Webhook.URL).To(Equal("https://n8n.example.com/hook"))
			Expect(cfg.LLM.Model).To(Equal("qwen-plus"))
		})
	})

	Describe("GetConfigValue", func() {
		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			v, err := c.GetConfigValue("llm.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("qwen-turbo"))

			v, err = c.GetConfigValue("api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(":8000"))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			v, err := c.GetConfigValue("webhook.url")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeEmpty())

			v, err = c.GetConfigValue("llm.requests_per_second")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("nope")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns every key in section order", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).To(HaveLen(24))
			Expect(keys[0]).To(Equal("storage.driver"))
			Expect(keys[len(keys)-1]).To(Equal("eventstream.topic"))
			Expect(keys).To(ContainElements("llm.api_key", "webhook.url", "auth.redis_addr", "client.token"))
		})

		It("returns keys in stable order", func() {
			Expect(config.ValidConfigKeys()).To(Equal(config.ValidConfigKeys()))
		})
	})

	Describe("IsValidConfigKey", func() {
		It("accepts known keys and rejects others", func() {
			Expect(config.IsValidConfigKey("llm.model")).To(BeTrue())
			Expect(config.IsValidConfigKey("eventstream.brokers")).To(BeTrue())
			Expect(config.IsValidConfigKey("model")).To(BeFalse())
			Expect(config.IsValidConfigKey("")).To(BeFalse())
		})
	})

	Describe("IsSecretKey", func() {
		It("flags credentials only", func() {
			Expect(config.IsSecretKey("llm.api_key")).To(BeTrue())
			Expect(config.IsSecretKey("client.token")).To(BeTrue())
			Expect(config.IsSecretKey("llm.model")).To(BeFalse())
		})
	})

	Describe("round-trip", func() {
		It("saves and loads config correctly with all fields", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage = config.StorageConfig{Driver: "postgres", PostgresDSN: "postgres://db/chat"}
			cfg.LLM.Provider = "openai"
			cfg.LLM.APIKey = "sk-round"
			cfg.LLM.Incremental = true
			cfg.LLM.RequestsPerSecond = 1.5
			cfg.Webhook.URL = "https://n8n.example.com/hook"
			cfg.Client.Token = "tok"
			cfg.Auth.RedisAddr = "redis:6379"
			cfg.EventStream = config.EventStreamConfig{Provider: "kafka", Brokers: "k:9092", Topic: "t"}

			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})
	})
})

var _ = Describe("PresetConfig", func() {
	It("returns the native dashscope preset", func() {
		cfg, err := config.PresetConfig("dashscope")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Provider).To(Equal("dashscope"))
		Expect(cfg.LLM.APIURL).To(ContainSubstring("dashscope.aliyuncs.com/api/v1"))
		Expect(cfg.LLM.Model).To(Equal("qwen-turbo"))
	})

	It("returns the compatible-mode dashscope preset", func() {
		cfg, err := config.PresetConfig("dashscope-compatible")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Provider).To(Equal("openai"))
		Expect(cfg.LLM.APIURL).To(ContainSubstring("compatible-mode"))
	})

	It("returns the openai preset", func() {
		cfg, err := config.PresetConfig("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.APIURL).To(Equal("https://api.openai.com/v1/chat/completions"))
		Expect(cfg.API.Listen).To(Equal(":8000"))
	})

	It("is case-insensitive", func() {
		cfg, err := config.PresetConfig("OpenAI")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Provider).To(Equal("openai"))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("anthropic")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})

var _ = Describe("ValidPresetNames", func() {
	It("returns the expected preset names", func() {
		Expect(config.ValidPresetNames()).To(Equal([]string{"dashscope", "dashscope-compatible", "openai"}))
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("parses valid TOML into a Config", func() {
		cfg, err := config.ParseConfigTOML([]byte("[api]\nlisten = \":1234\"\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":1234"))
	})

	It("returns error for invalid TOML", func() {
		_, err := config.ParseConfigTOML([]byte("not = [valid"))
		Expect(err).To(HaveOccurred())
	})

	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(*cfg).To(Equal(config.Config{}))
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("returns fully-populated defaults", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Driver).To(Equal(config.StorageSQLite))
		Expect(cfg.LLM.Model).To(Equal("qwen-turbo"))
		Expect(cfg.LLM.Temperature).To(Equal(0.7))
		Expect(cfg.LLM.MaxTokens).To(Equal(2000))
		Expect(cfg.Webhook.TimeoutSeconds).To(Equal(30))
		Expect(cfg.Client.APITarget).To(Equal("http://localhost:8000"))
		Expect(cfg.Auth.TokenTTLMinutes).To(Equal(1440))
		Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamNone))
		Expect(cfg.EventStream.Topic).To(Equal("streamchat.messages"))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		data := `[llm]
model = "qwen-max"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("llm.model")).To(Equal("qwen-max"))
		// Unset fields should still get defaults
		Expect(v.GetInt("llm.max_tokens")).To(Equal(2000))
	})

	It("respects environment variables with STREAMCHAT_ prefix", func() {
		GinkgoT().Setenv("STREAMCHAT_LLM_API_KEY", "sk-env")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v).LLM.APIKey).To(Equal("sk-env"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[storage]
driver = "sqlite"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv("STREAMCHAT_STORAGE_DRIVER", "inmemory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.driver")).To(Equal("inmemory"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.Registry, config.ServeFlags)

		// Simulate flag being set by user
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())
		Expect(cmd.Flags().Set("storage", "inmemory")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Registry, config.ServeFlags)

		cfg := config.FromViper(v)
		Expect(cfg.API.Listen).To(Equal(":7777"))
		Expect(cfg.Storage.Driver).To(Equal("inmemory"))
	})

	It("falls through to config when flag not set", func() {
		data := `[api]
listen = ":5555"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.Registry, config.ServeFlags)

		// Do NOT set the flag -- should fall through to config file value
		config.BindRegisteredFlags(v, cmd, config.Registry, config.ServeFlags)

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("registers typed LLM flags with their defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.Registry, config.LLMFlags)

		temp, err := cmd.Flags().GetFloat64("temperature")
		Expect(err).NotTo(HaveOccurred())
		Expect(temp).To(Equal(0.7))

		maxTokens, err := cmd.Flags().GetInt("max-tokens")
		Expect(err).NotTo(HaveOccurred())
		Expect(maxTokens).To(Equal(2000))

		Expect(cmd.Flags().Lookup("model").Shorthand).To(Equal("m"))
	})

	It("binds a typed flag value", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.Registry, config.LLMFlags)
		Expect(cmd.Flags().Set("max-tokens", "300")).To(Succeed())
		Expect(cmd.Flags().Set("incremental", "true")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Registry, config.LLMFlags)

		cfg := config.FromViper(v)
		Expect(cfg.LLM.MaxTokens).To(Equal(300))
		Expect(cfg.LLM.Incremental).To(BeTrue())
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}

		// "nonexistent" is not in the FlagSet -- should be safely skipped
		config.BindRegisteredFlags(v, cmd, config.Registry, []string{"nonexistent"})

		Expect(v.GetString("api.listen")).To(Equal(":8000"))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		fs := config.FlagSet{
			config.FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "streamchat API URL"},
		}

		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, fs, config.FlagAPITarget, &target)

		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("a"))
		Expect(f.Usage).To(Equal("streamchat API URL"))
		Expect(f.DefValue).To(Equal("http://localhost:8000"))
	})
})

var _ = Describe("viper default merging via LoadConfig", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "merge-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("fills in defaults for unset fields in a partial config", func() {
		data := `[webhook]
url = "https://n8n.example.com/hook"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := c.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Webhook.URL).To(Equal("https://n8n.example.com/hook"))
		Expect(cfg.Webhook.TimeoutSeconds).To(Equal(30))
		Expect(cfg.LLM.Model).To(Equal("qwen-turbo"))
		Expect(cfg.Storage.Driver).To(Equal("sqlite"))
	})

	It("does not overwrite explicitly set values", func() {
		data := `[llm]
temperature = 1.3
model = "qwen-long"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := c.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Temperature).To(Equal(1.3))
		Expect(cfg.LLM.Model).To(Equal("qwen-long"))
	})
})
