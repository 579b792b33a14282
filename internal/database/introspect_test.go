package database

import "testing"

func TestClassifyColumns(t *testing.T) {
	cols := []ColumnDescriptor{
		{Name: "id", DataType: "integer", UDTName: "int4"},
		{Name: "payload", DataType: "jsonb", UDTName: "jsonb"},
		{Name: "meta", DataType: "json", UDTName: "json"},
		{Name: "tags", DataType: "ARRAY", UDTName: "_text"},
		{Name: "name", DataType: "character varying", UDTName: "varchar"},
	}

	jsonCols, arrayCols := ClassifyColumns(cols)

	if !jsonCols["payload"] || !jsonCols["meta"] {
		t.Errorf("expected payload and meta to be classified as json, got %v", jsonCols)
	}
	if jsonCols["id"] || jsonCols["tags"] || jsonCols["name"] {
		t.Errorf("unexpected json classification: %v", jsonCols)
	}
	if !arrayCols["tags"] {
		t.Errorf("expected tags to be classified as array, got %v", arrayCols)
	}
	if arrayCols["id"] || arrayCols["payload"] || arrayCols["name"] {
		t.Errorf("unexpected array classification: %v", arrayCols)
	}
}

func TestStripSchemaQualifier(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"public"."users_id_seq"`, "users_id_seq"},
		{"users_id_seq", "users_id_seq"},
	}
	for _, c := range cases {
		if got := stripSchemaQualifier(c.in); got != c.want {
			t.Errorf("stripSchemaQualifier(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
