package tracker

import "time"

// Reason is a stable diagnostic code, persisted and logged.
type Reason = string

const (
	ReasonWrongCommunity     Reason = "wrong_community"
	ReasonMalformedMetadata  Reason = "malformed_metadata"
	ReasonAppMismatch        Reason = "app_mismatch"
	ReasonDeveloperMismatch  Reason = "developer_mismatch"
	ReasonMissingTags        Reason = "missing_tags"
	ReasonMissingBeneficiary Reason = "missing_beneficiary"
	ReasonCountryMismatch    Reason = "country_mismatch"
	ReasonMissingOnboarder   Reason = "missing_onboarder"
	ReasonMissingImage       Reason = "missing_image"
	ReasonBodyTooShort       Reason = "body_too_short"

	ReasonDailyLimit          Reason = "daily_limit"
	ReasonInsufficientBalance Reason = "insufficient_balance"
)

const (
	DayBucketLayout = "2006-01-02"

	commentApp        = "checkinbot/1.0"
	maxPermlinkLength = 255

	rateLimitRetries = 5
	rateLimitDelay   = 500 * time.Millisecond

	// heartbeats older than this many poll intervals are reported as stale
	StaleHeartbeatIntervals = 3
)
