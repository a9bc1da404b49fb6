package models

import "time"

// Category is one of the two public collections a drawing can be admitted into.
type Category string

const (
	CategoryFlowers   Category = "flowers"
	CategoryEggplants Category = "eggplants"
)

var Categories = []Category{CategoryFlowers, CategoryEggplants}

func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryFlowers, CategoryEggplants:
		return Category(s), true
	}
	return "", false
}

// PublicView is the name of the filtered listing that hides moderated records.
func (c Category) PublicView() string {
	return "public_" + string(c)
}

// View selects between the raw category table and its public view.
type View int

const (
	ViewPublic View = iota
	ViewAll
)

const PageSize = 200

// FlowerQuota is the number of flowers one identity may contribute.
const FlowerQuota = 10

type Submission struct {
	Id               string    `json:"id"`
	Category         Category  `json:"category"`
	Filename         string    `json:"filename"`
	ImageURL         string    `json:"image_url"`
	Confidence       float64   `json:"confidence"`
	Submitter        string    `json:"submitter_identity,omitempty"`
	Created          time.Time `json:"created_at"`
	ManualModeration *bool     `json:"manual_moderation,omitempty"`
}

func (s Submission) IsModerated() bool {
	return s.ManualModeration != nil && *s.ManualModeration
}

// Orphan is an uploaded object whose metadata record was never written.
type Orphan struct {
	Category  Category  `json:"category"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	Submitter string    `json:"submitter_identity"`
	Reported  time.Time `json:"reported_at"`
}

type CategoryStats struct {
	Category Category `json:"category"`
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
}

type Page struct {
	Items    []Submission `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int          `json:"total"`
}

type Moderator struct {
	Id         string
	Username   string
	Provider   string
	ProviderId string
}

// Key is the identifier used in the moderator allow list.
func (m Moderator) Key() string {
	return m.Provider + ":" + m.ProviderId
}

// Position places one garden sprite. Left and Top are percentages of the
// container; never persisted.
type Position struct {
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
	Scale float64 `json:"scale"`
}

type GardenItem struct {
	Submission
	Position Position `json:"position"`
}
