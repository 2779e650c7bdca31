package tracker

import (
	"strings"
	"unicode/utf8"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/config"
)

// Requirements are the constant rules a check-in post must satisfy.
type Requirements struct {
	Community        string
	App              string
	Developer        string
	Tags             []string
	Beneficiary      blockchain.Beneficiary
	Country          string
	RequireOnboarder bool
	RequireImage     bool
	MinBodyLength    int
	Normalize        bool
}

func RequirementsFromConfig(cfg *config.Config) Requirements {
	m := cfg.RequiredMetadata
	return Requirements{
		Community:        cfg.Community,
		App:              m.App,
		Developer:        m.Developer,
		Tags:             m.Tags,
		Beneficiary:      blockchain.Beneficiary{Account: m.Beneficiary.Account, Weight: m.Beneficiary.Weight},
		Country:          m.Country,
		RequireOnboarder: m.RequiresField(config.FieldOnboarder),
		RequireImage:     m.RequiresField(config.FieldImage),
		MinBodyLength:    cfg.MinBodyLength,
		Normalize:        cfg.Match.Normalize,
	}
}

type Verdict struct {
	Qualified bool
	Reason    Reason

	// Onboarder is the onboarder field of a qualified post, possibly empty
	// when the field is not required.
	Onboarder string
}

func rejected(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// Evaluator decides whether a post qualifies for a reward. Evaluate has no
// side effects and always returns the same verdict for the same post.
type Evaluator struct {
	requirements Requirements
}

func NewEvaluator(requirements Requirements) *Evaluator {
	return &Evaluator{requirements: requirements}
}

func (e *Evaluator) normalize(s string) string {
	if !e.requirements.Normalize {
		return s
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func (e *Evaluator) equal(actual string, present bool, want string) bool {
	return present && e.normalize(actual) == e.normalize(want)
}

// Evaluate runs the checks in order and reports the first failing one.
func (e *Evaluator) Evaluate(post *blockchain.Post) Verdict {
	r := e.requirements

	if post.Community != r.Community {
		return rejected(ReasonWrongCommunity)
	}

	metadata, err := ParseMetadata(post.RawMetadata)
	if err != nil {
		return rejected(ReasonMalformedMetadata)
	}

	if app, ok := metadata.String("app"); !e.equal(app, ok, r.App) {
		return rejected(ReasonAppMismatch)
	}

	if developer, ok := metadata.String("developer"); !e.equal(developer, ok, r.Developer) {
		return rejected(ReasonDeveloperMismatch)
	}

	if !e.hasTags(metadata) {
		return rejected(ReasonMissingTags)
	}

	if !e.hasBeneficiary(post, metadata) {
		return rejected(ReasonMissingBeneficiary)
	}

	if country, ok := metadata.String("country"); !e.equal(country, ok, r.Country) {
		return rejected(ReasonCountryMismatch)
	}

	onboarder, _ := metadata.String("onboarder")
	onboarder = strings.TrimSpace(onboarder)
	if r.RequireOnboarder && onboarder == "" {
		return rejected(ReasonMissingOnboarder)
	}

	if r.RequireImage && !hasImage(metadata) {
		return rejected(ReasonMissingImage)
	}

	if r.MinBodyLength > 0 && utf8.RuneCountInString(post.Body) < r.MinBodyLength {
		return rejected(ReasonBodyTooShort)
	}

	return Verdict{Qualified: true, Onboarder: strings.TrimPrefix(onboarder, "@")}
}

func (e *Evaluator) hasTags(metadata Metadata) bool {
	tags := make(map[string]struct{})
	for _, entry := range metadata.Strings("tags") {
		for _, tag := range strings.Fields(entry) {
			tags[e.normalize(tag)] = struct{}{}
		}
	}

	for _, want := range e.requirements.Tags {
		if _, ok := tags[e.normalize(want)]; !ok {
			return false
		}
	}
	return true
}

func (e *Evaluator) hasBeneficiary(post *blockchain.Post, metadata Metadata) bool {
	want := e.requirements.Beneficiary

	candidates := metadata.Beneficiaries()
	candidates = append(candidates, post.Beneficiaries...)
	candidates = append(candidates, extensionBeneficiaries(post.Extensions)...)

	for _, b := range candidates {
		if e.normalize(b.Account) == e.normalize(want.Account) && b.Weight == want.Weight {
			return true
		}
	}
	return false
}

func hasImage(metadata Metadata) bool {
	for _, image := range metadata.Strings("image") {
		if strings.TrimSpace(image) != "" {
			return true
		}
	}
	return false
}
