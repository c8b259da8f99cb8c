package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownService is one entry in the curated table of common recurring-billing
// merchants.
type KnownService struct {
	Name             string    `yaml:"name"`
	Aliases          []string  `yaml:"aliases"`
	Category         string    `yaml:"category"`
	TypicalFrequency Frequency `yaml:"typical_frequency"`
}

// Reference bundles the static tables the engine matches against: the
// known-service aliases, the subscription keyword lists and the rent
// exclusion keywords. Built once, never mutated afterwards, so a single
// instance is safe to share across concurrent Detect calls.
type Reference struct {
	services        []KnownService
	exactCategories []string
	keywords        []string
	rentKeyTerms    []string
	rentCategories  []string
}

// defaultKnownServices is the built-in service table. Order is significant:
// the matcher scans it deterministically and ties resolve to the earliest
// entry.
var defaultKnownServices = []KnownService{
	// Video streaming
	{Name: "Netflix", Aliases: []string{"netflix"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Disney+", Aliases: []string{"disney plus", "disneyplus"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "HBO Max", Aliases: []string{"hbo max", "hbomax", "max streaming"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Amazon Prime", Aliases: []string{"amazon prime", "prime video"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Apple TV+", Aliases: []string{"apple tv", "apple tv plus"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Paramount+", Aliases: []string{"paramount plus", "paramountplus"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Hulu", Aliases: []string{"hulu"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Crunchyroll", Aliases: []string{"crunchyroll"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},
	{Name: "YouTube Premium", Aliases: []string{"youtube premium", "youtube music"}, Category: "streaming", TypicalFrequency: FrequencyMonthly},

	// Music & audio
	{Name: "Spotify", Aliases: []string{"spotify"}, Category: "music", TypicalFrequency: FrequencyMonthly},
	{Name: "Apple Music", Aliases: []string{"apple music"}, Category: "music", TypicalFrequency: FrequencyMonthly},
	{Name: "Tidal", Aliases: []string{"tidal"}, Category: "music", TypicalFrequency: FrequencyMonthly},
	{Name: "Deezer", Aliases: []string{"deezer"}, Category: "music", TypicalFrequency: FrequencyMonthly},
	{Name: "Audible", Aliases: []string{"audible"}, Category: "music", TypicalFrequency: FrequencyMonthly},

	// Gaming
	{Name: "Xbox Game Pass", Aliases: []string{"xbox game pass", "xbox live"}, Category: "gaming", TypicalFrequency: FrequencyMonthly},
	{Name: "PlayStation Plus", Aliases: []string{"playstation plus", "ps plus"}, Category: "gaming", TypicalFrequency: FrequencyMonthly},
	{Name: "Nintendo Online", Aliases: []string{"nintendo online", "nintendo switch online"}, Category: "gaming", TypicalFrequency: FrequencyAnnual},

	// Cloud storage & productivity
	{Name: "Dropbox", Aliases: []string{"dropbox"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Google One", Aliases: []string{"google one", "google storage", "google workspace"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "iCloud", Aliases: []string{"icloud"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Microsoft 365", Aliases: []string{"microsoft 365", "office 365"}, Category: "software", TypicalFrequency: FrequencyAnnual},
	{Name: "Adobe", Aliases: []string{"adobe", "adobe creative cloud"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Canva", Aliases: []string{"canva"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Notion", Aliases: []string{"notion"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "1Password", Aliases: []string{"1password"}, Category: "software", TypicalFrequency: FrequencyAnnual},

	// Developer tools
	{Name: "GitHub", Aliases: []string{"github"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "GitLab", Aliases: []string{"gitlab"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "JetBrains", Aliases: []string{"jetbrains"}, Category: "software", TypicalFrequency: FrequencyAnnual},
	{Name: "DigitalOcean", Aliases: []string{"digitalocean"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Heroku", Aliases: []string{"heroku"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Netlify", Aliases: []string{"netlify"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Vercel", Aliases: []string{"vercel"}, Category: "software", TypicalFrequency: FrequencyMonthly},

	// Communication & VPN
	{Name: "Zoom", Aliases: []string{"zoom"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "Slack", Aliases: []string{"slack"}, Category: "software", TypicalFrequency: FrequencyMonthly},
	{Name: "NordVPN", Aliases: []string{"nordvpn"}, Category: "software", TypicalFrequency: FrequencyAnnual},
	{Name: "ExpressVPN", Aliases: []string{"expressvpn"}, Category: "software", TypicalFrequency: FrequencyAnnual},

	// News & reading
	{Name: "New York Times", Aliases: []string{"new york times", "nytimes"}, Category: "news", TypicalFrequency: FrequencyMonthly},
	{Name: "Wall Street Journal", Aliases: []string{"wall street journal", "wsj"}, Category: "news", TypicalFrequency: FrequencyMonthly},
	{Name: "Substack", Aliases: []string{"substack"}, Category: "news", TypicalFrequency: FrequencyMonthly},
	{Name: "Medium", Aliases: []string{"medium monthly", "medium membership"}, Category: "news", TypicalFrequency: FrequencyMonthly},
	{Name: "Patreon", Aliases: []string{"patreon"}, Category: "news", TypicalFrequency: FrequencyMonthly},

	// Fitness & health
	{Name: "Peloton", Aliases: []string{"peloton"}, Category: "fitness", TypicalFrequency: FrequencyMonthly},
	{Name: "Strava", Aliases: []string{"strava"}, Category: "fitness", TypicalFrequency: FrequencyAnnual},
	{Name: "Headspace", Aliases: []string{"headspace"}, Category: "fitness", TypicalFrequency: FrequencyAnnual},
	{Name: "Calm", Aliases: []string{"calm app", "calm.com"}, Category: "fitness", TypicalFrequency: FrequencyAnnual},
	{Name: "Planet Fitness", Aliases: []string{"planet fitness"}, Category: "fitness", TypicalFrequency: FrequencyMonthly},
}

var defaultExactCategories = []string{
	"subscription",
	"subscriptions",
	"recurring",
	"recurring payment",
	"recurring payments",
}

var defaultKeywords = []string{
	"subscription",
	"recurring",
	"membership",
	"premium",
	"service",
	"streaming",
	"software",
	"saas",
	"software as a service",
	"monthly service",
	"annual service",
}

var (
	defaultRentKeyTerms   = []string{"rent", "housing"}
	defaultRentCategories = []string{"rent", "housing", "mortgage"}
)

// NewReference builds an immutable reference set from explicit tables.
// Alias and keyword entries are lowercased on the way in.
func NewReference(services []KnownService, exactCategories, keywords []string) *Reference {
	r := &Reference{
		services:        make([]KnownService, len(services)),
		exactCategories: lowerAll(exactCategories),
		keywords:        lowerAll(keywords),
		rentKeyTerms:    defaultRentKeyTerms,
		rentCategories:  defaultRentCategories,
	}
	for i, svc := range services {
		svc.Aliases = lowerAll(svc.Aliases)
		if svc.TypicalFrequency == "" {
			svc.TypicalFrequency = FrequencyMonthly
		}
		r.services[i] = svc
	}
	return r
}

// DefaultReference returns the built-in tables.
func DefaultReference() *Reference {
	return NewReference(defaultKnownServices, defaultExactCategories, defaultKeywords)
}

// referenceFile is the YAML overlay format. User services are appended
// after the defaults unless use_default_services is false.
type referenceFile struct {
	UseDefaultServices *bool          `yaml:"use_default_services,omitempty"`
	Services           []KnownService `yaml:"services,omitempty"`
	Keywords           []string       `yaml:"keywords,omitempty"`
}

// LoadReference reads a YAML overlay and merges it with the defaults.
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference file: %w", err)
	}

	var file referenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing reference file: %w", err)
	}

	useDefaults := file.UseDefaultServices == nil || *file.UseDefaultServices
	var services []KnownService
	if useDefaults {
		services = append(services, defaultKnownServices...)
	}
	services = append(services, file.Services...)

	keywords := append([]string{}, defaultKeywords...)
	keywords = append(keywords, file.Keywords...)

	return NewReference(services, defaultExactCategories, keywords), nil
}

// Services returns the service table in scan order.
func (r *Reference) Services() []KnownService {
	return r.services
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
