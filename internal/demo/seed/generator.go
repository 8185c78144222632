package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Product struct {
	ID          string
	Category    string
	Eligibility bool
}

type EligibilityRow struct {
	CheckedAt   string
	ProductID   string
	Eligibility bool
	Message     string
}

type AdSalesRow struct {
	Date         string
	ProductID    string
	AdSales      float64
	Impressions  int64
	AdSpend      float64
	Clicks       int64
	UnitsSold    int64
	CostPerClick float64
}

type TotalSalesRow struct {
	Date              string
	ProductID         string
	TotalSales        float64
	TotalUnitsOrdered int64
}

// Dataset is one deterministic snapshot of the demo e-commerce warehouse.
type Dataset struct {
	Products    []Product
	Eligibility []EligibilityRow
	AdSales     []AdSalesRow
	TotalSales  []TotalSalesRow
}

type Generator struct {
	rnd *rand.Rand
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(cfg.Seed)),
		cfg: cfg,
	}
}

func (g *Generator) Generate() Dataset {
	var data Dataset
	for i := 1; i <= g.cfg.Products; i++ {
		product := Product{
			ID:          fmt.Sprintf("P%04d", i),
			Category:    pickOne(g.rnd, []string{"electronics", "home", "beauty", "toys", "sports", "grocery"}),
			Eligibility: g.rnd.Intn(100) < 85,
		}
		data.Products = append(data.Products, product)

		message := ""
		if !product.Eligibility {
			message = pickOne(g.rnd, []string{"listing suppressed", "missing brand approval", "restricted category"})
		}
		data.Eligibility = append(data.Eligibility, EligibilityRow{
			CheckedAt:   g.cfg.StartDate.Add(time.Duration(g.cfg.Days) * 24 * time.Hour).Format(time.RFC3339),
			ProductID:   product.ID,
			Eligibility: product.Eligibility,
			Message:     message,
		})
	}

	for day := 0; day < g.cfg.Days; day++ {
		date := g.cfg.StartDate.AddDate(0, 0, day).Format(dateLayout)
		for _, product := range data.Products {
			ad := g.adSales(date, product.ID)
			data.AdSales = append(data.AdSales, ad)

			organic := int64(g.rnd.Intn(40))
			units := ad.UnitsSold + organic
			unitPrice := ad.AdSales / math.Max(float64(ad.UnitsSold), 1)
			if ad.UnitsSold == 0 {
				unitPrice = 10 + g.rnd.Float64()*90
			}
			data.TotalSales = append(data.TotalSales, TotalSalesRow{
				Date:              date,
				ProductID:         product.ID,
				TotalSales:        round2(float64(units) * unitPrice),
				TotalUnitsOrdered: units,
			})
		}
	}
	return data
}

func (g *Generator) adSales(date, productID string) AdSalesRow {
	impressions := int64(500 + g.rnd.Intn(9500))
	clicks := impressions * int64(1+g.rnd.Intn(5)) / 100
	cpc := round2(0.2 + g.rnd.Float64()*2.3)
	units := clicks * int64(g.rnd.Intn(15)) / 100
	return AdSalesRow{
		Date:         date,
		ProductID:    productID,
		AdSales:      round2(float64(units) * (10 + g.rnd.Float64()*90)),
		Impressions:  impressions,
		AdSpend:      round2(float64(clicks) * cpc),
		Clicks:       clicks,
		UnitsSold:    units,
		CostPerClick: cpc,
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
