package validation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

func computerPages() model.Pages {
	return model.Pages{
		{Name: "general", Context: true, Fields: []model.Field{{Name: "school"}, {Name: "type"}}},
		{Name: "item", Fields: []model.Field{
			{Name: "name"},
			{Name: "ip_address", Kind: model.FieldKindMulti},
			{Name: "mac_address", Kind: model.FieldKindMulti},
		}},
	}
}

func TestShapeWrapsScalarsUnconditionally(t *testing.T) {
	values := model.Values{
		"school":      "demo",
		"name":        "pc01",
		"ip_address":  "10.0.0.5",
		"mac_address": []string{"00:11:22:33:44:55"},
	}
	got := Shape(values, computerPages())
	want := model.Values{
		"school":      "demo",
		"name":        "pc01",
		"ip_address":  []any{"10.0.0.5"},
		"mac_address": []any{"00:11:22:33:44:55"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	if values["ip_address"] != "10.0.0.5" {
		t.Fatalf("input was modified")
	}

	if diff := cmp.Diff(model.Values{"ip_address": []any{}}, Shape(model.Values{"ip_address": nil}, computerPages())); diff != "" {
		t.Fatalf("nil shape mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareRunsTransformsInOrder(t *testing.T) {
	ctx := model.Context{Mode: model.ModeEdit, Target: "cn=pc01,cn=computers"}
	injectDN := TransformFunc(func(ctx model.Context, values model.Values) (model.Values, error) {
		values["$dn$"] = ctx.Target
		return values, nil
	})

	got, err := Prepare(ctx, model.Values{"name": "pc01", "ip_address": "10.0.0.5", "type": "windows"}, computerPages(),
		injectDN, SetValue("ignore_warning", false), Drop("type"))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	want := model.Values{
		"name":           "pc01",
		"ip_address":     []any{"10.0.0.5"},
		"$dn$":           "cn=pc01,cn=computers",
		"ignore_warning": false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("prepare mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareWrapsTransformErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Prepare(model.Context{}, model.Values{}, nil, TransformFunc(func(model.Context, model.Values) (model.Values, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
