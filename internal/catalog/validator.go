package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one structural violation found in a catalog payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in a payload. It is never
// retried; the submitter has to fix the input.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "catalog: validation failed"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "catalog: " + strings.Join(msgs, "; ")
}

// Validator checks catalog payloads against the structural contract.
type Validator struct {
	validate *validator.Validate
}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate enumerates every structural violation in the catalog. It never
// mutates the input; a nil return means the payload is acceptable.
func (v *Validator) Validate(c *Catalog) *ValidationError {
	var errs []FieldError

	if c == nil {
		return &ValidationError{Errors: []FieldError{{Field: "catalog", Message: "payload is empty"}}}
	}

	if err := v.validate.Struct(c.StoreInfo); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				errs = append(errs, FieldError{
					Field:   "store_info." + storeField(fe.Field()),
					Message: storeMessage(fe),
				})
			}
		} else {
			errs = append(errs, FieldError{Field: "store_info", Message: err.Error()})
		}
	}

	if c.Products == nil {
		errs = append(errs, FieldError{Field: "products", Message: "product list is required"})
	}

	for i, p := range c.Products {
		prefix := fmt.Sprintf("products[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "name is required"})
		}
		if p.Price == nil && !hasVariantPrice(p) {
			errs = append(errs, FieldError{Field: prefix + ".price", Message: "price is required"})
		}
		if err := v.validate.Var(p.URL, "required,url"); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".url", Message: "product url is required and must be a valid url"})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

func hasVariantPrice(p Product) bool {
	for _, variant := range p.Variants {
		if variant.Price != nil {
			return true
		}
	}
	return false
}

func storeField(name string) string {
	switch name {
	case "Name":
		return "name"
	case "WebsiteURL":
		return "website_url"
	default:
		return strings.ToLower(name)
	}
}

func storeMessage(fe validator.FieldError) string {
	if fe.Tag() == "url" {
		return "must be a valid url"
	}
	return "is required"
}
