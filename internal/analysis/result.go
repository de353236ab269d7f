package analysis

// Category classifies the analyzed item by its dominant material.
type Category string

const (
	CategoryPlastic    Category = "plastic"
	CategoryMetal      Category = "metal"
	CategoryPaper      Category = "paper"
	CategoryGlass      Category = "glass"
	CategoryElectronic Category = "electronic"
	CategoryTextile    Category = "textile"
	CategoryOrganic    Category = "organic"
	CategoryOther      Category = "other"
)

// Categories lists every valid Category value.
var Categories = []Category{
	CategoryPlastic,
	CategoryMetal,
	CategoryPaper,
	CategoryGlass,
	CategoryElectronic,
	CategoryTextile,
	CategoryOrganic,
	CategoryOther,
}

// Valid reports whether c is one of the defined category values.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Location is a place where an item can be dropped off for recycling.
type Location struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
}

// ReuseIdea is one suggested way to repurpose an item.
type ReuseIdea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty,omitempty"` // easy, medium or hard
}

// Organization is a charity or drop-off organization that accepts donations.
type Organization struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RecycleRecommendation describes whether and how an item can be recycled.
type RecycleRecommendation struct {
	Possible     bool       `json:"possible"`
	Instructions string     `json:"instructions,omitempty"`
	Locations    []Location `json:"locations,omitempty"`
}

// ReuseRecommendation describes whether and how an item can be reused.
type ReuseRecommendation struct {
	Possible bool        `json:"possible"`
	Ideas    []ReuseIdea `json:"ideas,omitempty"`
}

// DonateRecommendation describes whether and where an item can be donated.
type DonateRecommendation struct {
	Possible      bool           `json:"possible"`
	Organizations []Organization `json:"organizations,omitempty"`
}

// Recommendations groups the per-action guidance for an item.
type Recommendations struct {
	Recycle RecycleRecommendation `json:"recycle"`
	Reuse   ReuseRecommendation   `json:"reuse"`
	Donate  DonateRecommendation  `json:"donate"`
}

// Environmental holds estimated environmental impact figures in kg or kWh.
type Environmental struct {
	CarbonFootprint float64 `json:"carbonFootprint"` // kg CO2 if thrown away
	CarbonSaved     float64 `json:"carbonSaved"`     // kg CO2 saved by diverting
	WasteReduction  float64 `json:"wasteReduction"`  // kg of waste diverted
	EnergySaved     float64 `json:"energySaved"`     // kWh
}

// Result is the canonical analysis produced for one upload, independent of
// which provider or parse path produced it. It is constructed once and not
// mutated afterwards.
type Result struct {
	ItemName         string          `json:"itemName"`
	Description      string          `json:"description"`
	ItemCategory     Category        `json:"itemCategory"`
	Confidence       float64         `json:"confidence"`
	Recommendations  Recommendations `json:"recommendations"`
	Environmental    Environmental   `json:"environmental"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// defaultLocations are generic drop-off suggestions used when the provider
// response names no concrete places.
func defaultLocations() []Location {
	return []Location{
		{Name: "Local Recycling Center", Address: "Check your city's website", DistanceKm: 5},
		{Name: "Nearby Collection Point", Address: "Community centers or schools", DistanceKm: 2},
	}
}

// defaultOrganizations are well-known donation targets returned when the
// provider response names no concrete organizations.
func defaultOrganizations() []Organization {
	return []Organization{
		{Name: "Goodwill", Description: "Accepts clothing, household items, and electronics"},
		{Name: "Salvation Army", Description: "Accepts furniture, clothing, and household goods"},
		{Name: "Local Food Banks", Description: "For non-perishable food items"},
	}
}

func defaultRecommendations() Recommendations {
	return Recommendations{
		Recycle: RecycleRecommendation{
			Possible:     true,
			Instructions: "Check with your local recycling center for specific guidelines.",
			Locations:    defaultLocations(),
		},
		Reuse: ReuseRecommendation{
			Possible: true,
			Ideas: []ReuseIdea{
				{Title: "Creative Storage", Description: "Use as storage container for small items", Difficulty: "easy"},
				{Title: "DIY Project", Description: "Transform into a useful household item", Difficulty: "medium"},
			},
		},
		Donate: DonateRecommendation{
			Possible:      true,
			Organizations: defaultOrganizations(),
		},
	}
}

func defaultEnvironmental() Environmental {
	return Environmental{
		CarbonFootprint: 0.5,
		CarbonSaved:     0.3,
		WasteReduction:  1.0,
		EnergySaved:     2.0,
	}
}
