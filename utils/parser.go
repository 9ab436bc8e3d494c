package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	validate.RegisterValidation("usdc_amount", validateAmountTag)
}

// Validator returns the shared validator with the package's custom tags.
func Validator() *validator.Validate {
	return validate
}

// ParsePaymentIntent parses and validates a PaymentIntent from JSON.
func ParsePaymentIntent(data []byte) (*types.PaymentIntent, error) {
	var intent types.PaymentIntent

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&intent); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidRequest, 0, err, "failed to parse payment intent")
	}

	if err := ValidatePaymentIntent(intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ValidatePaymentIntent checks struct tags and the creator address.
func ValidatePaymentIntent(intent types.PaymentIntent) error {
	if err := validate.Struct(&intent); err != nil {
		return types.WrapError(types.ErrCodeInvalidRequest, 0, err, "invalid payment intent")
	}
	if _, err := ParseAddress(intent.CreatorAddress, "creatorAddress"); err != nil {
		return err
	}
	return nil
}

// ParseChainID accepts a decimal or 0x-prefixed chain id.
func ParseChainID(s string) (types.ChainID, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}

	id, err := strconv.ParseUint(s, base, 64)
	if err != nil || id == 0 {
		return 0, types.NewError(types.ErrCodeInvalidRequest, 0, "invalid chain id %q", s)
	}
	return types.ChainID(id), nil
}

// NormalizeJSON formats JSON with consistent indentation
func NormalizeJSON(data interface{}) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

func validateAmountTag(fl validator.FieldLevel) bool {
	_, err := ValidateAmount(fl.Field().String())
	return err == nil
}

func fieldError(field string, format string, args ...any) error {
	return types.NewError(types.ErrCodeInvalidRequest, 0, "%s: %s", field, fmt.Sprintf(format, args...))
}
