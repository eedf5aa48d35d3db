package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DiscountOrderRetainershipFirst = "retainership_first"
	DiscountOrderInsuranceFirst    = "insurance_first"
)

// BillingPolicy carries the operator-tunable knobs of the billing engine.
type BillingPolicy struct {
	RegistrationPatterns []string      `mapstructure:"registrationPatterns"`
	ConsultationTags     []string      `mapstructure:"consultationTags"`
	DefaultLeakAmount    int64         `mapstructure:"defaultLeakAmount"`
	DiscountOrder        string        `mapstructure:"discountOrder"`
	LeakSweepLookback    time.Duration `mapstructure:"leakSweepLookback"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		RegistrationPatterns: []string{"registration", "reg-", "card-fee", "folder"},
		ConsultationTags:     []string{"consultation", "opd", "gopd", "review"},
		DefaultLeakAmount:    500_000,
		DiscountOrder:        DiscountOrderRetainershipFirst,
		LeakSweepLookback:    24 * time.Hour,
	}
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewStaticBillingPolicyHolder returns a holder that never reloads.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(normalizeBillingPolicy(policy))
	return holder
}

func NewBillingPolicyHolder(log *zap.Logger) (*BillingPolicyHolder, error) {
	log = log.Named("config.billing_policy")
	v := viper.New()

	v.SetConfigName("billing_policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/carebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAREBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.registrationPatterns", defaults.RegistrationPatterns)
	v.SetDefault("billing.consultationTags", defaults.ConsultationTags)
	v.SetDefault("billing.defaultLeakAmount", defaults.DefaultLeakAmount)
	v.SetDefault("billing.discountOrder", defaults.DiscountOrder)
	v.SetDefault("billing.leakSweepLookback", defaults.LeakSweepLookback)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	policy = normalizeBillingPolicy(policy)
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	if !fileLoaded {
		log.Info("billing policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing policy reload failed", zap.Error(err))
			return
		}
		updated = normalizeBillingPolicy(updated)
		if err := validateBillingPolicy(updated); err != nil {
			log.Warn("invalid billing policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	return h.current.Load().(BillingPolicy)
}

func normalizeBillingPolicy(policy BillingPolicy) BillingPolicy {
	policy.RegistrationPatterns = lowerAll(policy.RegistrationPatterns)
	policy.ConsultationTags = lowerAll(policy.ConsultationTags)
	policy.DiscountOrder = strings.ToLower(strings.TrimSpace(policy.DiscountOrder))
	if policy.DiscountOrder == "" {
		policy.DiscountOrder = DiscountOrderRetainershipFirst
	}
	if policy.LeakSweepLookback <= 0 {
		policy.LeakSweepLookback = 24 * time.Hour
	}
	return policy
}

func validateBillingPolicy(policy BillingPolicy) error {
	if len(policy.RegistrationPatterns) == 0 {
		return errors.New("billing.registrationPatterns cannot be empty")
	}
	if len(policy.ConsultationTags) == 0 {
		return errors.New("billing.consultationTags cannot be empty")
	}
	if policy.DefaultLeakAmount < 0 {
		return errors.New("billing.defaultLeakAmount cannot be negative")
	}
	switch policy.DiscountOrder {
	case DiscountOrderRetainershipFirst, DiscountOrderInsuranceFirst:
	default:
		return errors.New("billing.discountOrder must be retainership_first or insurance_first")
	}
	return nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
