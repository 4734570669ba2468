package apify

import (
	"encoding/json"
	"fmt"
	"time"

	"outreach/internal/model"
)

type rawProfile struct {
	PublicIdentifier string            `json:"publicIdentifier"`
	URL              string            `json:"url"`
	FirstName        string            `json:"firstName"`
	LastName         string            `json:"lastName"`
	FullName         string            `json:"fullName"`
	Headline         string            `json:"headline"`
	Location         string            `json:"location"`
	ImgURL           string            `json:"imgUrl"`
	About            string            `json:"about"`
	Skills           []json.RawMessage `json:"skills"`
	Experience       []struct {
		Company     string `json:"company"`
		CompanyName string `json:"companyName"`
	} `json:"experience"`
}

// NormalizeProfiles maps dataset items onto profiles. Items without a public
// identifier cannot be keyed and are skipped.
func NormalizeProfiles(raw []byte, scrapedAt time.Time) ([]model.Profile, error) {
	var items []rawProfile
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding dataset items: %w", err)
	}

	profiles := make([]model.Profile, 0, len(items))
	for _, it := range items {
		if it.PublicIdentifier == "" {
			continue
		}
		p := model.Profile{
			ID:          it.PublicIdentifier,
			LinkedInURL: it.URL,
			FirstName:   it.FirstName,
			LastName:    it.LastName,
			FullName:    it.FullName,
			Headline:    it.Headline,
			Location:    it.Location,
			ProfilePic:  it.ImgURL,
			About:       it.About,
			Skills:      skillNames(it.Skills),
			ScrapedAt:   scrapedAt,
		}
		if p.FullName == "" && (p.FirstName != "" || p.LastName != "") {
			p.FullName = joinName(p.FirstName, p.LastName)
		}
		if len(it.Experience) > 0 {
			p.CurrentCompany = it.Experience[0].Company
			if p.CurrentCompany == "" {
				p.CurrentCompany = it.Experience[0].CompanyName
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// skillNames accepts both plain strings and {"name": ...} objects.
func skillNames(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name  string `json:"name"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(r, &obj); err == nil {
			switch {
			case obj.Name != "":
				out = append(out, obj.Name)
			case obj.Title != "":
				out = append(out, obj.Title)
			}
		}
	}
	return out
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
