package dbsource_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezachrisen/ruletree"
	"github.com/ezachrisen/ruletree/dbsource"
)

func openTestStore(t *testing.T) *dbsource.Store {
	t.Helper()

	db, err := dbsource.Open("sqlite://" + filepath.Join(t.TempDir(), "ruletree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := dbsource.NewStore(db)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema())

	for _, a := range []ruletree.Attribute{
		{ID: 1, Name: "account", GroupID: 0, Kind: ruletree.String{}, Key: true},
		{ID: 2, Name: "name", GroupID: 0, Kind: ruletree.String{}},
		{ID: 3, Name: "age", GroupID: 0, Kind: ruletree.Integer{}},
		{ID: 4, Name: "price", GroupID: 1, Kind: ruletree.Decimal{}, MaxLength: 12},
	} {
		require.NoError(t, store.SaveAttribute(a))
	}
	return store
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := dbsource.Open("mysql://localhost/db")
	assert.Error(t, err)

	_, err = dbsource.Open("://not a url")
	assert.Error(t, err)
}

func TestStoreAttributes(t *testing.T) {
	store := openTestStore(t)

	attrs, err := store.Attributes()
	require.NoError(t, err)
	require.Len(t, attrs, 4)

	assert.Equal(t, "account", attrs[0].Name)
	assert.True(t, attrs[0].Key)
	assert.Equal(t, "integer", attrs[2].Kind.String())
	assert.Equal(t, 12, attrs[3].MaxLength)
}

func TestStoreAsCatalogSource(t *testing.T) {
	store := openTestStore(t)

	catalog, err := store.Catalog()
	require.NoError(t, err)

	a, err := catalog.ByName("age")
	require.NoError(t, err)
	assert.Equal(t, 3, a.ID)

	again, err := store.Catalog()
	require.NoError(t, err)
	assert.Same(t, catalog, again)
}

func TestRecordKey(t *testing.T) {
	key := dbsource.RecordKey(map[string]string{
		"region":  "EU",
		"account": "A1",
	})
	// Values are joined in sorted attribute-name order.
	assert.Equal(t, "A1|EU", key)
}

func TestSaveAndRetrieveRecord(t *testing.T) {
	store := openTestStore(t)

	catalog, err := store.Catalog()
	require.NoError(t, err)
	name, _ := catalog.ByName("name")
	price, _ := catalog.ByName("price")

	p := ruletree.NewProduct()
	p.Set(name, "Ada")
	p.SetRow(price, 0, "20")
	p.SetRow(price, 1, "35.5")

	keys := map[string]string{"account": "A1"}
	require.NoError(t, store.SaveRecord(dbsource.RecordKey(keys), p))

	got, err := store.Retrieve(keys)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Value(name))
	assert.Equal(t, 2, got.RowCount(price.GroupID))

	v, ok := got.Get(price.GroupID, 1, price.ID)
	assert.True(t, ok)
	assert.Equal(t, "35.5", v)
}

func TestSaveRecordReplacesPreviousValues(t *testing.T) {
	store := openTestStore(t)

	catalog, err := store.Catalog()
	require.NoError(t, err)
	name, _ := catalog.ByName("name")

	key := dbsource.RecordKey(map[string]string{"account": "A1"})

	p := ruletree.NewProduct()
	p.Set(name, "Ada")
	require.NoError(t, store.SaveRecord(key, p))

	p = ruletree.NewProduct()
	p.Set(name, "Grace")
	require.NoError(t, store.SaveRecord(key, p))

	got, err := store.Retrieve(map[string]string{"account": "A1"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.Value(name))
}

func TestRetrieveUnknownRecordIsEmpty(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Retrieve(map[string]string{"account": "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, got.RowCount(0))
}

func TestAttributeSource(t *testing.T) {
	store := openTestStore(t)

	catalog, err := store.Catalog()
	require.NoError(t, err)
	name, _ := catalog.ByName("name")

	key := dbsource.RecordKey(map[string]string{"account": "A1"})
	p := ruletree.NewProduct()
	p.Set(name, "Ada")
	require.NoError(t, store.SaveRecord(key, p))

	src := store.AttributeSource(key)
	v, err := src.Retriever.Retrieve(src, "name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)

	// An absent value reads as empty, not as an error.
	v, err = src.Retriever.Retrieve(src, "age")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestStoreAsEngineCollaborator(t *testing.T) {
	store := openTestStore(t)

	catalog, err := store.Catalog()
	require.NoError(t, err)
	account, _ := catalog.ByName("account")
	name, _ := catalog.ByName("name")

	stored := ruletree.NewProduct()
	stored.Set(name, "Ada")
	require.NoError(t, store.SaveRecord(dbsource.RecordKey(map[string]string{"account": "A1"}), stored))

	root := ruletree.NewRuleSet("root")
	root.AddRule(&ruletree.Rule{
		ID: "name_unchanged", Attribute: "name",
		Op:       ruletree.Compare{Cmp: ruletree.Eq},
		Operands: []ruletree.Operand{ruletree.Literal("Ada")},
		Target:   ruletree.TargetCurrent,
	})

	e, err := ruletree.NewEngine(ruletree.NewRuleTree(root),
		ruletree.WithCatalog(catalog),
		ruletree.WithRecords(store))
	require.NoError(t, err)

	incoming := ruletree.NewProduct()
	incoming.Set(account, "A1")
	incoming.Set(name, "Ada")

	report, err := e.Validate(incoming)
	require.NoError(t, err)
	assert.True(t, report.Pass())
}
