package config

import (
	"math"
	"os"
	"time"
)

// Voice describes one selectable text-to-speech voice.
type Voice struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Provider string   `json:"provider"`
	Tags     []string `json:"tags"`
}

// LatencyTargets bounds a single conversational turn. MaxResponse is the
// longest the caller should wait for a full agent reply before interrupting;
// SilenceThreshold is how long the line must stay quiet before the user's
// turn is considered finished.
type LatencyTargets struct {
	MaxResponse      time.Duration `json:"max_response"`
	SilenceThreshold time.Duration `json:"silence_threshold"`
}

// CallLimits are advisory caps consumed by scheduling logic.
type CallLimits struct {
	MaxDuration          time.Duration `json:"max_duration"`
	MaxConcurrentPerUser int           `json:"max_concurrent_per_user"`
}

// PricingTier maps a credit purchase to its bonus and minute allotment.
type PricingTier struct {
	AmountUSD float64 `json:"amount_usd"`
	BonusUSD  float64 `json:"bonus_usd"`
	Minutes   int     `json:"minutes"`
}

// FreeTier is what an account gets before its first purchase.
type FreeTier struct {
	TestCalls   int `json:"test_calls"`
	LiveMinutes int `json:"live_minutes"`
	Agents      int `json:"agents"`
}

// Pricing is the purchasable credit table, tiers ordered by amount ascending.
type Pricing struct {
	MinimumPurchaseUSD float64       `json:"minimum_purchase_usd"`
	Tiers              []PricingTier `json:"tiers"`
	Free               FreeTier      `json:"free"`
}

// CostModel holds the per-unit cost of each external cost driver.
type CostModel struct {
	STTPerMinuteUSD       float64 `json:"stt_per_minute_usd"`
	LLMPerCallUSD         float64 `json:"llm_per_call_usd"`
	TTSPerThousandChars   float64 `json:"tts_per_thousand_chars_usd"`
	TelephonyPerMinuteUSD float64 `json:"telephony_per_minute_usd"`
}

// EstimateCall prices one finished call from its duration and the number of
// characters synthesized. Partial minutes are billed as whole minutes, the
// way both speech and telephony providers meter.
func (m CostModel) EstimateCall(duration time.Duration, synthesizedChars int) float64 {
	minutes := math.Ceil(duration.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if synthesizedChars < 0 {
		synthesizedChars = 0
	}

	cost := minutes*m.STTPerMinuteUSD +
		minutes*m.TelephonyPerMinuteUSD +
		float64(synthesizedChars)/1000*m.TTSPerThousandChars +
		m.LLMPerCallUSD

	return cost
}

// Settings groups the read-only runtime configuration. Values are fixed at
// load; accessors return copies so callers cannot mutate the shared state.
type Settings struct {
	latency LatencyTargets
	limits  CallLimits
	pricing Pricing
	costs   CostModel
	voices  []Voice
}

func (s Settings) LatencyTargets() LatencyTargets { return s.latency }

func (s Settings) CallLimits() CallLimits { return s.limits }

func (s Settings) CostModel() CostModel { return s.costs }

func (s Settings) Pricing() Pricing {
	p := s.pricing
	p.Tiers = append([]PricingTier(nil), s.pricing.Tiers...)

	return p
}

// VoiceCatalog returns the selectable voices in a stable order. The result
// is a deep copy.
func (s Settings) VoiceCatalog() []Voice {
	voices := make([]Voice, len(s.voices))
	for i, v := range s.voices {
		v.Tags = append([]string(nil), v.Tags...)
		voices[i] = v
	}

	return voices
}

func loadSettings() Settings {
	return Settings{
		latency: LatencyTargets{
			MaxResponse:      parseDuration(os.Getenv("LATENCY_MAX_RESPONSE"), 5*time.Second),
			SilenceThreshold: parseDuration(os.Getenv("LATENCY_SILENCE_THRESHOLD"), 1500*time.Millisecond),
		},
		limits: CallLimits{
			MaxDuration:          parseDuration(os.Getenv("CALL_MAX_DURATION"), 10*time.Minute),
			MaxConcurrentPerUser: parsePositiveInt(os.Getenv("CALL_MAX_CONCURRENT"), 5),
		},
		pricing: Pricing{
			MinimumPurchaseUSD: 5,
			Tiers: []PricingTier{
				{AmountUSD: 5, BonusUSD: 0, Minutes: 25},
				{AmountUSD: 10, BonusUSD: 1, Minutes: 55},
				{AmountUSD: 25, BonusUSD: 4, Minutes: 145},
				{AmountUSD: 50, BonusUSD: 10, Minutes: 300},
				{AmountUSD: 100, BonusUSD: 25, Minutes: 625},
			},
			Free: FreeTier{
				TestCalls:   10,
				LiveMinutes: 5,
				Agents:      1,
			},
		},
		costs: CostModel{
			STTPerMinuteUSD:       0.006,
			LLMPerCallUSD:         0.02,
			TTSPerThousandChars:   0.015,
			TelephonyPerMinuteUSD: 0.014,
		},
		voices: []Voice{
			{ID: "alloy", Name: "Alloy", Provider: "openai", Tags: []string{"neutral", "balanced"}},
			{ID: "echo", Name: "Echo", Provider: "openai", Tags: []string{"male", "warm"}},
			{ID: "fable", Name: "Fable", Provider: "openai", Tags: []string{"british", "expressive"}},
			{ID: "onyx", Name: "Onyx", Provider: "openai", Tags: []string{"male", "deep"}},
			{ID: "nova", Name: "Nova", Provider: "openai", Tags: []string{"female", "friendly"}},
			{ID: "shimmer", Name: "Shimmer", Provider: "openai", Tags: []string{"female", "soft"}},
			{ID: "rachel", Name: "Rachel", Provider: "elevenlabs", Tags: []string{"female", "calm", "narration"}},
			{ID: "adam", Name: "Adam", Provider: "elevenlabs", Tags: []string{"male", "deep", "narration"}},
		},
	}
}
