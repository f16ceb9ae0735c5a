package parley

import jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

// Validatable is implemented by argument structs that need custom business
// validation. Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// validateAgainstSchema runs schema validation on an already-parsed value v.
// Caller must unmarshal JSON and pass the result; parse errors are reported by
// the caller (e.g. Extractor.ParseAndValidate or the dynamic tool execute path).
func validateAgainstSchema(sch *jsonschema.Schema, v any) error {
	if err := sch.Validate(v); err != nil {
		return &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}

// validateCustom runs the Validatable layer if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
