package profiles

import (
	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/models"
)

var (
	analyticsIDCandidates = []string{
		"No. Pedido (Filtrado)",
		"Folio del Ticket (Filtrado)",
		"No. Pedido",
		"Folio del Ticket",
		"identificador_unico",
	}
	analyticsAmountCandidates = []string{"Venta", "Importe", "Total"}
)

// DefaultProfile returns the built-in profile of a client. KIOSKO has its own
// thresholds; every other client gets the OXXO ones under its own name.
func DefaultProfile(client string) models.ClientProfile {
	key := NormalizeClient(client)
	if key == ClientKIOSKO {
		return kioskoProfile()
	}

	profile := oxxoProfile()
	if key != "" && key != ClientOXXO {
		profile.Client = key
		profile.Display.SourceName = key
		profile.Display.CategoryLabels[models.CategoryMissingInSource] = "Faltante en " + key
	}
	return profile
}

func oxxoProfile() models.ClientProfile {
	return models.ClientProfile{
		Client:              ClientOXXO,
		TolerancePercentage: decimal.NewFromFloat(5.0),
		ToleranceAbsolute:   decimal.NewFromInt(50),
		FuzzyThreshold:      85,
		MinorMultiplier:     models.DefaultMinorMultiplier,
		Display: models.DisplayConfig{
			SourceName:      "OXXO",
			IdentifierLabel: "Pedido",
			UnitName:        "pedidos",
			CurrencySymbol:  "$",
			CategoryLabels: map[models.Category]string{
				models.CategoryExactMatch:         "Pedido Conciliado",
				models.CategoryWithinTolerance:    "Dentro de Tolerancia",
				models.CategoryMinorDifference:    "Diferencia Menor",
				models.CategoryMajorDifference:    "Diferencia Mayor",
				models.CategoryMissingInSource:    "Faltante en OXXO",
				models.CategoryMissingInAnalytics: "Pedido no registrado",
			},
		},
		Fields: models.FieldMapping{
			SourceID:              []string{"pedido_adicional", "Pedido"},
			SourceAmount:          []string{"valor", "Valor"},
			AnalyticsID:           append([]string(nil), analyticsIDCandidates...),
			AnalyticsAmount:       append([]string(nil), analyticsAmountCandidates...),
			AnalyticsClientColumn: "Cliente",
		},
	}
}

func kioskoProfile() models.ClientProfile {
	return models.ClientProfile{
		Client:              ClientKIOSKO,
		TolerancePercentage: decimal.NewFromFloat(3.0),
		ToleranceAbsolute:   decimal.NewFromInt(25),
		FuzzyThreshold:      90,
		MinorMultiplier:     models.DefaultMinorMultiplier,
		Display: models.DisplayConfig{
			SourceName:      "KIOSKO",
			IdentifierLabel: "Ticket",
			UnitName:        "tickets",
			CurrencySymbol:  "$",
			CategoryLabels: map[models.Category]string{
				models.CategoryExactMatch:         "Ticket Conciliado",
				models.CategoryWithinTolerance:    "Dentro de Tolerancia",
				models.CategoryMinorDifference:    "Diferencia Menor",
				models.CategoryMajorDifference:    "Diferencia Mayor",
				models.CategoryMissingInSource:    "Faltante en KIOSKO",
				models.CategoryMissingInAnalytics: "Ticket no registrado",
			},
		},
		Fields: models.FieldMapping{
			SourceID:              []string{"Ticket", "No. Ticket", "ticket"},
			SourceAmount:          []string{"Costo Total", "costo_total", "Total", "Importe"},
			AnalyticsID:           []string{"Folio del Ticket (Filtrado)", "Folio del Ticket", "Ticket (Filtrado)", "Ticket", "Folio"},
			AnalyticsAmount:       append([]string(nil), analyticsAmountCandidates...),
			AnalyticsClientColumn: "Cliente",
		},
	}
}
