package registry

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Param returns the attribute name of a manifest params object. The second
// result is false when params is absent, not an object, or lacks the key.
func Param(params cty.Value, name string) (cty.Value, bool) {
	if params.Type() == cty.NilType || params.IsNull() || !params.IsKnown() {
		return cty.NilVal, false
	}
	ty := params.Type()
	switch {
	case ty.IsObjectType():
		if !ty.HasAttribute(name) {
			return cty.NilVal, false
		}
		return params.GetAttr(name), true
	case ty.IsMapType():
		key := cty.StringVal(name)
		if params.HasIndex(key).True() {
			return params.Index(key), true
		}
	}
	return cty.NilVal, false
}

// IntParam decodes a whole-number param.
func IntParam(params cty.Value, name string) (int64, error) {
	v, ok := Param(params, name)
	if !ok {
		return 0, fmt.Errorf("missing param '%s'", name)
	}
	var out int64
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return 0, fmt.Errorf("param '%s': %w", name, err)
	}
	return out, nil
}

// DecimalParam decodes a numeric param. Numbers and numeric strings are accepted.
func DecimalParam(params cty.Value, name string) (decimal.Decimal, error) {
	v, ok := Param(params, name)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing param '%s'", name)
	}
	if v.IsNull() || !v.IsKnown() {
		return decimal.Decimal{}, fmt.Errorf("param '%s' has no value", name)
	}

	var text string
	switch v.Type() {
	case cty.Number:
		var bf big.Float
		if err := gocty.FromCtyValue(v, &bf); err != nil {
			return decimal.Decimal{}, fmt.Errorf("param '%s': %w", name, err)
		}
		text = bf.Text('f', -1)
	case cty.String:
		text = v.AsString()
	default:
		return decimal.Decimal{}, fmt.Errorf("param '%s' must be a number, got %s", name, v.Type().FriendlyName())
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("param '%s': %w", name, err)
	}
	return d, nil
}

// EncodeParams serializes params as cty JSON with an implied type. Absent
// params encode to nil.
func EncodeParams(params cty.Value) ([]byte, error) {
	if params.Type() == cty.NilType || params.IsNull() {
		return nil, nil
	}
	if !params.IsWhollyKnown() {
		return nil, fmt.Errorf("params must be fully known")
	}
	return ctyjson.SimpleJSONValue{Value: params}.MarshalJSON()
}

// DecodeParams reverses EncodeParams. Empty input yields cty.NilVal.
func DecodeParams(data []byte) (cty.Value, error) {
	if len(data) == 0 {
		return cty.NilVal, nil
	}
	var v ctyjson.SimpleJSONValue
	if err := v.UnmarshalJSON(data); err != nil {
		return cty.NilVal, fmt.Errorf("failed to decode params: %w", err)
	}
	return v.Value, nil
}
