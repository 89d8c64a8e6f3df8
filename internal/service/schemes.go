package service

import "github.com/atinyakov/FarmCredit/internal/models"

// SchemeQuery describes the applicant a scheme check is run for.
type SchemeQuery struct {
	LandSize float64 `json:"landSize"`
	Crop     string  `json:"crop"`
}

// CheckSchemes returns the government schemes an applicant is eligible for.
func CheckSchemes(q SchemeQuery) []models.Scheme {
	schemes := []models.Scheme{}
	if q.LandSize < 2 {
		schemes = append(schemes, models.Scheme{Name: "PM-KISAN", Benefit: "₹6000/year"})
	}
	if q.Crop == "Wheat" || q.Crop == "Rice" {
		schemes = append(schemes, models.Scheme{Name: "Crop Insurance Subsidy", Benefit: "50% premium off"})
	}
	return schemes
}
