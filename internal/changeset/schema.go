package changeset

import "github.com/invopop/jsonschema"

// Row documents one object of a JSON changeset. Columns other than the ones
// listed are allowed and become extra columns.
type Row struct {
	Type        string `json:"type" jsonschema:"enum=add,enum=update,enum=delete,enum=split"`
	ID          string `json:"id,omitempty" jsonschema:"description=Target transaction; required for update and delete and split"`
	Date        string `json:"date,omitempty" jsonschema:"format=date"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount,omitempty" jsonschema:"description=Decimal amount; split parts must add up to the original"`
	Account     string `json:"account,omitempty"`
	Category    string `json:"category,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Schema returns the JSON Schema of a JSON changeset file.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, AllowAdditionalProperties: true}
	item := r.Reflect(&Row{})
	item.Version = ""
	return &jsonschema.Schema{
		Version: jsonschema.Version,
		Title:   "csvledger changeset",
		Type:    "array",
		Items:   item,
	}
}
