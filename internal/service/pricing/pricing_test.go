package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		discount   string
		tip        string
		hasStylist bool
		want       Quote
	}{
		{
			name:       "plain booking",
			price:      "50.00",
			discount:   "0",
			tip:        "0",
			hasStylist: true,
			want: Quote{
				ServicePrice: d("50"), Discount: d("0"), Total: d("50"), Tip: d("0"), Charge: d("50"),
				Tax: d("5.75"), Platform: d("5"), Salon: d("20"), Stylist: d("25"),
			},
		},
		{
			name:       "discount and tip",
			price:      "100.00",
			discount:   "10.00",
			tip:        "5.00",
			hasStylist: true,
			want: Quote{
				ServicePrice: d("100"), Discount: d("10"), Total: d("90"), Tip: d("5"), Charge: d("95"),
				Tax: d("10.93"), Platform: d("9"), Salon: d("36"), Stylist: d("50"),
			},
		},
		{
			name:       "no stylist folds share into salon",
			price:      "50.00",
			discount:   "0",
			tip:        "2.00",
			hasStylist: false,
			want: Quote{
				ServicePrice: d("50"), Discount: d("0"), Total: d("50"), Tip: d("2"), Charge: d("52"),
				Tax: d("5.98"), Platform: d("5"), Salon: d("47"), Stylist: d("0"),
			},
		},
		{
			name:       "discount larger than price is clamped",
			price:      "20.00",
			discount:   "25.00",
			tip:        "0",
			hasStylist: true,
			want: Quote{
				ServicePrice: d("20"), Discount: d("20"), Total: d("0"), Tip: d("0"), Charge: d("0"),
				Tax: d("0"), Platform: d("0"), Salon: d("0"), Stylist: d("0"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(DefaultRates(), d(tt.price), d(tt.discount), d(tt.tip), tt.hasStylist)
			assert.True(t, tt.want.ServicePrice.Equal(got.ServicePrice), "service price %s", got.ServicePrice)
			assert.True(t, tt.want.Discount.Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, tt.want.Total.Equal(got.Total), "total %s", got.Total)
			assert.True(t, tt.want.Tip.Equal(got.Tip), "tip %s", got.Tip)
			assert.True(t, tt.want.Charge.Equal(got.Charge), "charge %s", got.Charge)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, tt.want.Platform.Equal(got.Platform), "platform %s", got.Platform)
			assert.True(t, tt.want.Salon.Equal(got.Salon), "salon %s", got.Salon)
			assert.True(t, tt.want.Stylist.Equal(got.Stylist), "stylist %s", got.Stylist)
		})
	}
}

func TestCalculateSplitAlwaysSumsToCharge(t *testing.T) {
	rates := DefaultRates()
	for cents := int64(0); cents <= 20000; cents += 37 {
		price := FromCents(cents)
		for _, tip := range []string{"0", "0.01", "3.33"} {
			q := Calculate(rates, price, d("1.11"), d(tip), true)
			sum := q.Platform.Add(q.Salon).Add(q.Stylist)
			assert.True(t, sum.Equal(q.Charge), "price %s tip %s: %s != %s", price, tip, sum, q.Charge)
			assert.True(t, q.Total.Equal(q.ServicePrice.Sub(q.Discount)))
			assert.False(t, q.Stylist.IsNegative())
		}
	}
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(5000), Cents(d("50.00")))
	assert.Equal(t, int64(1999), Cents(d("19.99")))
	assert.Equal(t, int64(1), Cents(d("0.005")))
	assert.True(t, d("12.34").Equal(FromCents(1234)))
}
