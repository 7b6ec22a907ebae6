package topic

// Topic is a newsletter content category. The set is closed: subscribers
// pick from All(), and the scraper only tags articles with these values.
type Topic string

const (
	Education           Topic = "Education"
	Health              Topic = "Health"
	Housing             Topic = "Housing"
	Environment         Topic = "Environment"
	CriminalJustice     Topic = "Criminal Justice"
	EconomicDevelopment Topic = "Economic Development"
	Democracy           Topic = "Democracy & Governance"
	Immigration         Topic = "Immigration"
	Transportation      Topic = "Transportation"
	FoodSecurity        Topic = "Food Security"
	MentalHealth        Topic = "Mental Health"
	CommunityDev        Topic = "Community Development"
	Technology          Topic = "Technology"
	Energy              Topic = "Energy"
	Agriculture         Topic = "Agriculture"
	SocialServices      Topic = "Social Services"
	ArtsCulture         Topic = "Arts & Culture"
	YouthDevelopment    Topic = "Youth Development"
	SeniorServices      Topic = "Senior Services"
	PublicSafety        Topic = "Public Safety"
	Infrastructure      Topic = "Infrastructure"
	WorkforceDev        Topic = "Workforce Development"
)

// All returns every available topic.
func All() []Topic {
	return []Topic{
		Education, Health, Housing, Environment, CriminalJustice,
		EconomicDevelopment, Democracy, Immigration, Transportation,
		FoodSecurity, MentalHealth, CommunityDev, Technology,
		Energy, Agriculture, SocialServices, ArtsCulture, YouthDevelopment,
		SeniorServices, PublicSafety, Infrastructure, WorkforceDev,
	}
}

// Known reports whether t is one of the available topics.
func Known(t Topic) bool {
	for _, k := range All() {
		if k == t {
			return true
		}
	}
	return false
}

// FallbackGraph maps each topic to an ordered list of related topics to
// draw from when the primary topic has no fresh content. The mapping is
// hand-curated and directed: "Health" falls back to "Mental Health" but
// not necessarily the reverse.
type FallbackGraph struct {
	edges        map[Topic][]Topic
	maxFallbacks int
}

// DefaultMaxFallbacks bounds how many fallback topics are tried per topic.
const DefaultMaxFallbacks = 3

var defaultEdges = map[Topic][]Topic{
	Health:              {MentalHealth, CommunityDev},
	MentalHealth:        {Health, SocialServices},
	Housing:             {EconomicDevelopment, CommunityDev},
	Environment:         {Energy, Agriculture, PublicSafety},
	CriminalJustice:     {PublicSafety, CommunityDev, MentalHealth},
	EconomicDevelopment: {Housing, WorkforceDev, CommunityDev},
	Democracy:           {PublicSafety, CommunityDev},
	Immigration:         {SocialServices, CommunityDev},
	Transportation:      {Infrastructure, PublicSafety, Environment},
	FoodSecurity:        {Agriculture, CommunityDev, Health},
	CommunityDev:        {SocialServices, EconomicDevelopment},
	Technology:          {Education, Infrastructure},
	Energy:              {Environment, Infrastructure},
	Agriculture:         {FoodSecurity, Environment, EconomicDevelopment},
	SocialServices:      {CommunityDev, MentalHealth},
	ArtsCulture:         {CommunityDev, Education},
	YouthDevelopment:    {Education, CommunityDev},
	SeniorServices:      {Health, SocialServices},
	PublicSafety:        {CriminalJustice, CommunityDev},
	Infrastructure:      {Transportation, EconomicDevelopment},
	WorkforceDev:        {EconomicDevelopment, Education},
}

// DefaultGraph builds the curated fallback graph. maxFallbacks <= 0 uses
// DefaultMaxFallbacks.
func DefaultGraph(maxFallbacks int) *FallbackGraph {
	if maxFallbacks <= 0 {
		maxFallbacks = DefaultMaxFallbacks
	}
	return &FallbackGraph{edges: defaultEdges, maxFallbacks: maxFallbacks}
}

// Fallbacks returns the ordered fallback topics for t, first-listed
// preferred. Unknown topics get an empty list.
func (g *FallbackGraph) Fallbacks(t Topic) []Topic {
	fb := g.edges[t]
	if len(fb) > g.maxFallbacks {
		fb = fb[:g.maxFallbacks]
	}
	out := make([]Topic, len(fb))
	copy(out, fb)
	return out
}

// Related returns t followed by its fallbacks, in priority order.
func (g *FallbackGraph) Related(t Topic) []Topic {
	return append([]Topic{t}, g.Fallbacks(t)...)
}
