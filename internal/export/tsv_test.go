package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/receiptflow/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTSV_OneRowPerItem(t *testing.T) {
	o, err := order.New("W123", "2024-05-01", order.KindOnline)
	require.NoError(t, err)
	o.CustomerNumber = "C-9"
	o.Financials = &order.Financials{GrandTotal: 31.48}
	o.Items = []order.OrderItem{
		{SKU: "sku-1", Title: "Stapler", UnitPrice: 12.99, QuantityOrdered: 2, QuantityFulfilled: 2, LineTotal: 25.98, TaxTotal: 1.5, StatusText: "Delivered"},
		{SKU: "sku-2", Title: "Tape", UnitPrice: 4.0, QuantityOrdered: 1, QuantityFulfilled: 1, LineTotal: 4.0, StatusText: "Delivered"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, []order.Order{o}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3) // header + two items

	assert.Equal(t, strings.Join(header, "\t"), lines[0])

	first := strings.Split(lines[1], "\t")
	assert.Equal(t, "W123", first[0])
	assert.Equal(t, "2024-05-01", first[1])
	assert.Equal(t, "online", first[2])
	assert.Equal(t, "C-9", first[3])
	assert.Equal(t, "31.48", first[7])
	assert.Equal(t, "sku-1", first[8])
	assert.Equal(t, "12.99", first[10])
	assert.Equal(t, "2", first[11])
	assert.Equal(t, "25.98", first[13])
	assert.Equal(t, "Delivered", first[16])

	second := strings.Split(lines[2], "\t")
	assert.Equal(t, "W123", second[0])
	assert.Equal(t, "sku-2", second[8])
}

func TestWriteTSV_EmptyItemsStillRow(t *testing.T) {
	o, err := order.New("POS.77", "2024-02-01", order.KindInStore)
	require.NoError(t, err)
	o.StoreInfo = &order.StoreInfo{Number: "0042", City: "Austin", State: "TX"}

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, []order.Order{o}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	row := strings.Split(lines[1], "\t")
	assert.Equal(t, "POS.77", row[0])
	assert.Equal(t, "in-store", row[2])
	assert.Equal(t, "0042", row[4])
	assert.Equal(t, "Austin", row[5])
	assert.Equal(t, "TX", row[6])
	// All item columns blank.
	for i := 8; i <= 16; i++ {
		assert.Empty(t, row[i], "column %d", i)
	}
}

func TestWriteTSV_HeaderOnlyForNoOrders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, nil))
	assert.Equal(t, strings.Join(header, "\t")+"\n", buf.String())
}
