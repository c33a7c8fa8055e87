package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
)

var singleItemSpec = Spec{
	Identity: []string{"uid", "sku"},
	Exclude:  []string{"contains"},
	ReadOnly: []string{"id", "kind"},
}

func openDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func mustDecode(t *testing.T, body string) Payload {
	p, err := Decode([]byte(body))
	require.NoError(t, err)
	return p
}

func TestIdentityView_RequiresEveryIdentityField(t *testing.T) {
	_, err := singleItemSpec.IdentityView(mustDecode(t, `{"uid": "123456789", "sku": null}`))

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"This field is required."}, verr.Fields["sku"])
	assert.NotContains(t, verr.Fields, "uid")
}

func TestDefaultsView_DropsIdentityExcludedAndReadOnly(t *testing.T) {
	p := mustDecode(t, `{"id": 9, "kind": "bulk", "uid": "1", "sku": "S", "contains": [1], "from_bulk": 4}`)
	d := singleItemSpec.DefaultsView(p)
	assert.Len(t, d, 1)
	assert.JSONEq(t, `4`, string(d["from_bulk"]))
}

func TestBuild_SingleItem(t *testing.T) {
	db := openDB(t)
	var item model.Item
	fields, err := singleItemSpec.Build(db,
		mustDecode(t, `{"uid": "123456789", "sku": "V6", "from_bulk": 3, "contains": [7], "id": 99}`), &item)
	require.NoError(t, err)

	assert.Equal(t, []string{"UIDCode", "SkuCode"}, fields)
	require.NotNil(t, item.UIDCode)
	assert.Equal(t, "123456789", *item.UIDCode)
	require.NotNil(t, item.FromBulkID)
	assert.Equal(t, uint64(3), *item.FromBulkID)
	assert.Empty(t, item.ContainsIDs, "contains is never a default")
	assert.Zero(t, item.ID)
}

func TestBuild_RunsBindingValidation(t *testing.T) {
	db := openDB(t)
	spec := Spec{Identity: []string{"code"}}

	var wo model.WorkOrder
	_, err := spec.Build(db, mustDecode(t, `{"code": "WO-1"}`), &wo)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t,
		[]string{"Work Order 'WO-1' does not start with 'E3D-WO-', 'E3D-PO-', or 'E3D-CR-'"},
		verr.Fields["code"])

	_, err = spec.Build(db, mustDecode(t, `{"code": "E3D-WO-1", "is_test_data": true}`), &wo)
	require.NoError(t, err)
	assert.True(t, wo.IsTestData)
}

func TestUnmarshal_TypeMismatchIsValidation(t *testing.T) {
	var ev model.Event
	err := Unmarshal([]byte(`{"item": "seven"}`), &ev)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "item")
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"code":`))
	assert.True(t, apperr.IsValidation(err))

	p, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestValidate_OneOfAndRange(t *testing.T) {
	type settings struct {
		Voltage int `json:"voltage" binding:"oneof=12 24"`
		Wattage int `json:"wattage" binding:"min=0,max=99"`
	}
	err := Validate(&settings{Voltage: 5, Wattage: 120})

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{`"5" is not a valid choice.`}, verr.Fields["voltage"])
	assert.Equal(t, []string{"Ensure this value is less than or equal to 99."}, verr.Fields["wattage"])

	assert.NoError(t, Validate(&settings{Voltage: 24, Wattage: 40}))
}
