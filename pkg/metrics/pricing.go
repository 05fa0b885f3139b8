package metrics

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// PriceTable maps model IDs to prices. The "default" entry is the fallback
// for unknown models.
type PriceTable map[string]ModelPrice

// DefaultPrices is the static price table used when no overrides are
// configured. Prices drift; treat the estimate as advisory.
var DefaultPrices = PriceTable{
	"claude-opus-4":     {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	"claude-sonnet-4":   {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-haiku-3-5":  {InputPerMillion: 0.8, OutputPerMillion: 4.0},
	"gpt-4o":            {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"default":           {InputPerMillion: 3.0, OutputPerMillion: 15.0},
}

// Lookup returns the price for model, falling back to "default".
func (t PriceTable) Lookup(model string) ModelPrice {
	if p, ok := t[model]; ok {
		return p
	}
	if p, ok := t["default"]; ok {
		return p
	}
	return DefaultPrices["default"]
}
