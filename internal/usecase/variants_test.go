package usecase

import (
	"math"
	"testing"
)

func TestExtractVariants(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  Variants
	}{
		{
			name:  "size in ml",
			title: "Garnier Micellar Water 400ml",
			want:  Variants{SizeML: 400},
		},
		{
			name:  "size in litres normalized to ml",
			title: "Himalaya Shampoo 1.5 L",
			want:  Variants{SizeML: 1500},
		},
		{
			name:  "fluid ounces normalized to ml",
			title: "Cleanser 2 fl oz",
			want:  Variants{SizeML: 2 * 29.5735},
		},
		{
			name:  "weight in grams",
			title: "Face Mask 50g",
			want:  Variants{WeightG: 50},
		},
		{
			name:  "weight in kg normalized to grams",
			title: "Protein Powder 1kg",
			want:  Variants{WeightG: 1000},
		},
		{
			name:  "pack of N",
			title: "Soap Pack of 3",
			want:  Variants{Pack: 3},
		},
		{
			name:  "shade code survives when quantity stripped",
			title: "Fit Me Foundation 128 30ml",
			want:  Variants{SizeML: 30, Shade: "128"},
		},
		{
			name:  "model code",
			title: "Trimmer MG-3750",
			want:  Variants{Model: "MG-3750"},
		},
		{
			name:  "nothing extractable",
			title: "Matte Lipstick Ruby Red",
			want:  Variants{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractVariants(tc.title)
			if math.Abs(got.SizeML-tc.want.SizeML) > 1e-6 {
				t.Errorf("SizeML = %v, want %v", got.SizeML, tc.want.SizeML)
			}
			if math.Abs(got.WeightG-tc.want.WeightG) > 1e-6 {
				t.Errorf("WeightG = %v, want %v", got.WeightG, tc.want.WeightG)
			}
			if got.Pack != tc.want.Pack {
				t.Errorf("Pack = %d, want %d", got.Pack, tc.want.Pack)
			}
			if got.Shade != tc.want.Shade {
				t.Errorf("Shade = %q, want %q", got.Shade, tc.want.Shade)
			}
			if got.Model != tc.want.Model {
				t.Errorf("Model = %q, want %q", got.Model, tc.want.Model)
			}
		})
	}
}

func TestCompareVariants(t *testing.T) {
	t.Run("both empty has no opinion", func(t *testing.T) {
		if _, ok := CompareVariants(Variants{}, Variants{}); ok {
			t.Error("expected ok=false for two empty variant sets")
		}
	})

	t.Run("equal sizes match", func(t *testing.T) {
		score, ok := CompareVariants(Variants{SizeML: 400}, Variants{SizeML: 400})
		if !ok || score != 1.0 {
			t.Errorf("score = %v ok = %v, want 1.0 true", score, ok)
		}
	})

	t.Run("unit conversion rounding within tolerance", func(t *testing.T) {
		// 2 fl oz = 59.147 ml vs a listing rounded to 59 ml.
		score, ok := CompareVariants(Variants{SizeML: 59.147}, Variants{SizeML: 59})
		if !ok || score != 1.0 {
			t.Errorf("score = %v ok = %v, want tolerance to absorb rounding", score, ok)
		}
	})

	t.Run("different sizes mismatch", func(t *testing.T) {
		score, ok := CompareVariants(Variants{SizeML: 400}, Variants{SizeML: 200})
		if !ok || score != 0 {
			t.Errorf("score = %v ok = %v, want 0 true", score, ok)
		}
	})

	t.Run("one-sided field counts as mismatch", func(t *testing.T) {
		score, ok := CompareVariants(Variants{SizeML: 400}, Variants{})
		if !ok || score != 0 {
			t.Errorf("score = %v ok = %v, want 0 true", score, ok)
		}
	})

	t.Run("fraction of applicable checks", func(t *testing.T) {
		a := Variants{SizeML: 400, Shade: "128"}
		b := Variants{SizeML: 400, Shade: "130"}
		score, ok := CompareVariants(a, b)
		if !ok || score != 0.5 {
			t.Errorf("score = %v ok = %v, want 0.5 true", score, ok)
		}
	})

	t.Run("score bounded", func(t *testing.T) {
		sets := []Variants{
			{}, {SizeML: 100}, {WeightG: 50, Pack: 2}, {Shade: "5a", Model: "XR-200"},
		}
		for _, a := range sets {
			for _, b := range sets {
				if score, ok := CompareVariants(a, b); ok && (score < 0 || score > 1) {
					t.Errorf("score %v out of [0,1] for %+v vs %+v", score, a, b)
				}
			}
		}
	})
}
