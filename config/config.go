package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/logger"
)

const (
	Application     = "forum"
	ApplicationFull = "Reputation forum backend"
	EnvPrefix       = "FORUM"
)

var (
	log *zap.Logger

	validate = validator.New()

	ErrInvalidConfig = errors.New("invalid config")
)

type Explorer struct {
	URI                  string        `validate:"required,url"`
	PageSize             int           `validate:"min=1,max=500"`
	RetryMax             int           `validate:"min=0"`
	Timeout              time.Duration `validate:"gt=0"`
	ErgoTreeTemplateHash string        `validate:"omitempty,hexadecimal"`
}

type Node struct {
	Scheme         string `validate:"oneof=http https"`
	Fqdn           string `validate:"required"`
	Port           int    `validate:"min=1,max=65535"`
	User           string
	Password       string
	ApiKey         string
	WalletPassword string
}

func (n Node) ErgNode() erg.NodeConfig {
	return erg.NodeConfig{
		Scheme:         n.Scheme,
		Fqdn:           n.Fqdn,
		Port:           n.Port,
		User:           n.User,
		Password:       n.Password,
		ApiKey:         n.ApiKey,
		WalletPassword: n.WalletPassword,
	}
}

// Forum is the validated runtime configuration of every command.
type Forum struct {
	Explorer Explorer
	Node     Node
	Links    forum.Links

	Discussion   string
	SpamLimit    int           `validate:"min=0"`
	ComputeDepth int           `validate:"min=0"`
	Fanout       int           `validate:"min=1"`
	PollInterval time.Duration `validate:"gt=0"`
	Port         int           `validate:"min=1,max=65535"`
	RateLimit    float64       `validate:"gt=0"`

	ProfileTotalSupply int64 `validate:"min=1"`
	ContractAddress    string
	TypeNames          map[string]string

	WalletAddress string
	RedisAddr     string
	NatsEndpoint  string
	StateSubject  string `validate:"required"`

	LoggingLevel string `validate:"oneof=debug info warn error"`
}

// Types returns the builtin type NFTs merged with the configured names.
func (f Forum) Types() forum.Types {
	return forum.BuiltinTypes().With(f.TypeNames)
}

func SetLoggingDefaults() {
	// mutable keys use SetDefault so a reloaded config file still wins
	viper.SetDefault("logging.level", "info")
	logger.SetLevel(viper.GetString("logging.level"))
}

func SetExplorerDefaults() {
	if value := viper.Get("explorer.uri"); value == nil {
		viper.Set("explorer.uri", "https://api.ergoplatform.com")
	}

	if value := viper.Get("explorer.page_size"); value == nil {
		viper.Set("explorer.page_size", erg.DefaultPageSize)
	}

	if value := viper.Get("explorer.retry_max"); value == nil {
		viper.Set("explorer.retry_max", 0)
	}

	if value := viper.Get("explorer.timeout"); value == nil {
		viper.Set("explorer.timeout", "10s")
	}

	if value := viper.Get("web_explorer.tx"); value == nil {
		viper.Set("web_explorer.tx", forum.DefaultTxLink)
	}

	if value := viper.Get("web_explorer.addr"); value == nil {
		viper.Set("web_explorer.addr", forum.DefaultAddressLink)
	}

	if value := viper.Get("web_explorer.token"); value == nil {
		viper.Set("web_explorer.token", forum.DefaultTokenLink)
	}
}

func SetNodeDefaults() {
	if value := viper.Get("ergo_node.fqdn"); value == nil {
		viper.Set("ergo_node.fqdn", "213.239.193.208")
	}

	if value := viper.Get("ergo_node.scheme"); value == nil {
		viper.Set("ergo_node.scheme", "http")
	}

	if value := viper.Get("ergo_node.port"); value == nil {
		viper.Set("ergo_node.port", 9053)
	}
}

func SetForumDefaults() {
	viper.SetDefault("forum.spam_limit", forum.DefaultSpamLimit)
	viper.SetDefault("forum.compute_depth", forum.DefaultComputeDepth)

	if value := viper.Get("forum.discussion_id"); value == nil {
		viper.Set("forum.discussion_id", "")
	}

	if value := viper.Get("forum.fanout"); value == nil {
		viper.Set("forum.fanout", 8)
	}

	if value := viper.Get("forum.poll_interval"); value == nil {
		viper.Set("forum.poll_interval", "2m")
	}

	if value := viper.Get("forum.port"); value == nil {
		viper.Set("forum.port", 8088)
	}

	if value := viper.Get("forum.rate_limit"); value == nil {
		viper.Set("forum.rate_limit", 20)
	}

	if value := viper.Get("reputation.profile_total_supply"); value == nil {
		viper.Set("reputation.profile_total_supply", forum.ProfileTotalSupply)
	}

	if value := viper.Get("nats.state_subject"); value == nil {
		viper.Set("nats.state_subject", "forum.state")
	}
}

// SetDefaults fills every key a command reads.
func SetDefaults() {
	SetLoggingDefaults()
	SetExplorerDefaults()
	SetNodeDefaults()
	SetForumDefaults()
}

// Load reads the current viper values into a Forum and validates them.
func Load() (Forum, error) {
	f := Forum{
		Explorer: Explorer{
			URI:                  viper.GetString("explorer.uri"),
			PageSize:             viper.GetInt("explorer.page_size"),
			RetryMax:             viper.GetInt("explorer.retry_max"),
			Timeout:              viper.GetDuration("explorer.timeout"),
			ErgoTreeTemplateHash: viper.GetString("explorer.ergo_tree_template_hash"),
		},
		Node: Node{
			Scheme:         viper.GetString("ergo_node.scheme"),
			Fqdn:           viper.GetString("ergo_node.fqdn"),
			Port:           viper.GetInt("ergo_node.port"),
			User:           viper.GetString("ergo_node.user"),
			Password:       viper.GetString("ergo_node.password"),
			ApiKey:         viper.GetString("ergo_node.api_key"),
			WalletPassword: viper.GetString("ergo_node.wallet_password"),
		},
		Links: forum.Links{
			TxTemplate:      viper.GetString("web_explorer.tx"),
			AddressTemplate: viper.GetString("web_explorer.addr"),
			TokenTemplate:   viper.GetString("web_explorer.token"),
		},
		Discussion:         viper.GetString("forum.discussion_id"),
		SpamLimit:          viper.GetInt("forum.spam_limit"),
		ComputeDepth:       viper.GetInt("forum.compute_depth"),
		Fanout:             viper.GetInt("forum.fanout"),
		PollInterval:       viper.GetDuration("forum.poll_interval"),
		Port:               viper.GetInt("forum.port"),
		RateLimit:          viper.GetFloat64("forum.rate_limit"),
		ProfileTotalSupply: viper.GetInt64("reputation.profile_total_supply"),
		ContractAddress:    viper.GetString("reputation.contract_address"),
		TypeNames:          viper.GetStringMapString("reputation.type_names"),
		WalletAddress:      viper.GetString("wallet.address"),
		RedisAddr:          viper.GetString("redis.addr"),
		NatsEndpoint:       viper.GetString("nats.endpoint"),
		StateSubject:       viper.GetString("nats.state_subject"),
		LoggingLevel:       viper.GetString("logging.level"),
	}

	if err := validate.Struct(f); err != nil {
		return Forum{}, fmt.Errorf("%w - %s", ErrInvalidConfig, err.Error())
	}

	return f, nil
}

// Watch reloads the config file on every write and hands the new values to
// fn. Invalid files are logged and ignored. It is a no-op when no config file
// is in use.
func Watch(fn func(Forum)) {
	log = zap.L()

	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		f, err := Load()
		if err != nil {
			log.Error("ignoring config change", zap.Error(err), zap.String("file", e.Name))
			return
		}

		logger.SetLevel(f.LoggingLevel)
		log.Info("config reloaded",
			zap.String("file", e.Name),
			zap.Int("spam_limit", f.SpamLimit),
			zap.Int("compute_depth", f.ComputeDepth),
			zap.String("level", f.LoggingLevel))

		fn(f)
	})

	if viper.ConfigFileUsed() != "" {
		viper.WatchConfig()
	}
}
