package storage

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

var hundred = decimal.NewFromInt(100)

var validate = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// normalizeCandidate trims the free-text fields and fills in defaults that
// do not depend on validation.
func normalizeCandidate(c model.DealRecord) model.DealRecord {
	c.WineName = strings.Join(strings.Fields(c.WineName), " ")
	c.ShopName = strings.TrimSpace(c.ShopName)
	c.ShopWebsite = strings.TrimSpace(c.ShopWebsite)
	c.ShopLocation.State = model.State(strings.ToUpper(strings.TrimSpace(string(c.ShopLocation.State))))
	if !c.DealType.Valid() {
		if c.DiscountedPrice.Valid {
			c.DealType = model.DealDiscount
		} else {
			c.DealType = model.DealSpecial
		}
	}
	return c
}

// validateCandidate returns a *model.ValidationError naming the first field
// that fails.
func validateCandidate(c *model.DealRecord) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := fe.Namespace()
			if _, rest, ok := strings.Cut(field, "."); ok {
				field = rest
			}
			return &model.ValidationError{Field: field, Reason: reasonFor(fe)}
		}
		return &model.ValidationError{Field: "deal", Reason: err.Error()}
	}

	if c.DiscountedPrice.Valid {
		if !c.DiscountedPrice.Decimal.IsPositive() {
			return &model.ValidationError{Field: "discountedPrice", Reason: "must be positive"}
		}
		if c.DiscountedPrice.Decimal.GreaterThan(c.OriginalPrice) {
			return &model.ValidationError{Field: "discountedPrice", Reason: "must not exceed originalPrice"}
		}
	}
	if c.DiscountPercentage.Valid {
		p := c.DiscountPercentage.Decimal
		if p.IsNegative() || p.GreaterThan(hundred) {
			return &model.ValidationError{Field: "discountPercentage", Reason: "must be between 0 and 100"}
		}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
