package gateway

import (
	"sort"
	"strings"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// operatorCatalog lists the mobile-money operators supported per country.
var operatorCatalog = map[string][]models.MobileMoneyOperator{
	"CM": {
		{Country: "CM", Code: "orange_cm", Name: "Orange Money", Provider: "orange", Priority: 1},
		{Country: "CM", Code: "mtn_cm", Name: "MTN Mobile Money", Provider: "mtn", Priority: 2},
		{Country: "CM", Code: "eu_cm", Name: "Express Union", Provider: "express_union", Priority: 3},
	},
	"CI": {
		{Country: "CI", Code: "orange_ci", Name: "Orange Money", Provider: "orange", Priority: 1},
		{Country: "CI", Code: "mtn_ci", Name: "MTN Mobile Money", Provider: "mtn", Priority: 2},
		{Country: "CI", Code: "moov_ci", Name: "Moov Money", Provider: "moov", Priority: 3},
		{Country: "CI", Code: "wave_ci", Name: "Wave", Provider: "wave", Priority: 4},
	},
	"SN": {
		{Country: "SN", Code: "orange_sn", Name: "Orange Money", Provider: "orange", Priority: 1},
		{Country: "SN", Code: "wave_sn", Name: "Wave", Provider: "wave", Priority: 2},
		{Country: "SN", Code: "free_sn", Name: "Free Money", Provider: "free", Priority: 3},
	},
	"GH": {
		{Country: "GH", Code: "mtn_gh", Name: "MTN Mobile Money", Provider: "mtn", Priority: 1},
		{Country: "GH", Code: "vodafone_gh", Name: "Vodafone Cash", Provider: "vodafone", Priority: 2},
		{Country: "GH", Code: "airteltigo_gh", Name: "AirtelTigo Money", Provider: "airteltigo", Priority: 3},
	},
	"KE": {
		{Country: "KE", Code: "mpesa_ke", Name: "M-Pesa", Provider: "safaricom", Priority: 1},
		{Country: "KE", Code: "airtel_ke", Name: "Airtel Money", Provider: "airtel", Priority: 2},
	},
	"UG": {
		{Country: "UG", Code: "mtn_ug", Name: "MTN Mobile Money", Provider: "mtn", Priority: 1},
		{Country: "UG", Code: "airtel_ug", Name: "Airtel Money", Provider: "airtel", Priority: 2},
	},
}

// OperatorsFor returns a copy of the operators for country, ordered by
// priority. Unknown countries yield an empty, non-nil slice.
func OperatorsFor(country string) []models.MobileMoneyOperator {
	ops := operatorCatalog[strings.ToUpper(strings.TrimSpace(country))]
	out := make([]models.MobileMoneyOperator, len(ops))
	copy(out, ops)
	sortByPriority(out)
	return out
}

// SupportsOperator reports whether code is a known operator in country.
func SupportsOperator(country, code string) bool {
	for _, op := range operatorCatalog[strings.ToUpper(strings.TrimSpace(country))] {
		if strings.EqualFold(op.Code, code) {
			return true
		}
	}
	return false
}

func sortByPriority(ops []models.MobileMoneyOperator) {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Priority < ops[j].Priority
	})
}
