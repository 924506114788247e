// Package sales generates the SALES_TRANSACTIONS and SALES_LINE_ITEMS
// tables for every identity with transactions.
package sales

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/symmetri/internal/datagen/batch"
	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/sampling"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	TransactionsTable = "SALES_TRANSACTIONS"
	LineItemsTable    = "SALES_LINE_ITEMS"

	stream uint64 = 3 << 20

	meanTransactionsPerUser = 3
	transactionWindowDays   = 365
	maxItemsPerTransaction  = 5
	maxProductID            = 1000
	maxQuantity             = 3
	minUnitPrice            = 10
	maxUnitPrice            = 500
	discountProb            = 0.4
	maxDiscountShare        = 0.3
	genericProductVariants  = 100
)

var transactionColumns = []dataset.Column{
	{Name: "transaction_id", Type: dataset.Integer},
	{Name: "user_email_sha256", Type: dataset.String},
	{Name: "transaction_timestamp", Type: dataset.Timestamp},
	{Name: "total_amount", Type: dataset.Numeric},
	{Name: "currency", Type: dataset.String},
	{Name: "payment_method", Type: dataset.String},
	{Name: "store_id", Type: dataset.String},
	{Name: "channel", Type: dataset.String},
}

var lineItemColumns = []dataset.Column{
	{Name: "line_item_id", Type: dataset.Integer},
	{Name: "transaction_id", Type: dataset.Integer},
	{Name: "product_id", Type: dataset.Integer},
	{Name: "product_category", Type: dataset.String},
	{Name: "product_sub_category", Type: dataset.String},
	{Name: "product_type", Type: dataset.String},
	{Name: "product_brand", Type: dataset.String},
	{Name: "product_name", Type: dataset.String},
	{Name: "quantity", Type: dataset.Integer},
	{Name: "unit_price", Type: dataset.Numeric},
	{Name: "discount_amount", Type: dataset.Numeric},
	{Name: "total_line_amount", Type: dataset.Numeric},
}

// Product is the taxonomy slice attached to a line item.
type Product struct {
	Category    string
	SubCategory string
	Type        string
	Brand       string
	Name        string
}

type Generator struct {
	products config.Products
	sales    config.Sales
	opts     batch.Options
}

func New(products config.Products, sales config.Sales, opts batch.Options) *Generator {
	return &Generator{products: products, sales: sales, opts: opts.Normalize()}
}

type chunk struct {
	transactions [][]any
	items        [][]any
	// itemTx maps each item to the index of its transaction in this chunk.
	itemTx []int
}

// Generate returns the transactions and line items for users. Transaction
// and line item ids are sequential across the whole run.
func (g *Generator) Generate(ctx context.Context, users []string) (transactions, lineItems *dataset.Table, err error) {
	transactions = dataset.New(TransactionsTable, transactionColumns...)
	lineItems = dataset.New(LineItemsTable, lineItemColumns...)
	if len(users) == 0 {
		return transactions, lineItems, nil
	}
	if err := g.checkLists(); err != nil {
		return nil, nil, err
	}

	spans := batch.Spans(len(users), g.opts.Size)
	chunks, err := batch.Run(ctx, spans, g.opts.Parallelism, func(_ context.Context, s batch.Span) (chunk, error) {
		return g.chunk(sampling.NewRand(g.opts.Seed, stream+uint64(s.Index)), users[s.Start:s.End]), nil
	})
	if err != nil {
		return nil, nil, err
	}

	nextTx, nextItem := 1, 1
	for _, c := range chunks {
		base := nextTx
		for _, row := range c.transactions {
			row[0] = nextTx
			nextTx++
		}
		for i, row := range c.items {
			row[0] = nextItem
			row[1] = base + c.itemTx[i]
			nextItem++
		}
		transactions.Rows = append(transactions.Rows, c.transactions...)
		lineItems.Rows = append(lineItems.Rows, c.items...)
	}
	return transactions, lineItems, nil
}

func (g *Generator) checkLists() error {
	lists := []struct {
		name   string
		values []string
	}{
		{"sales.payment_methods", g.sales.PaymentMethods},
		{"sales.currencies", g.sales.Currencies},
		{"sales.channels", g.sales.Channels},
		{"sales.store_ids", g.sales.StoreIDs},
	}
	for _, l := range lists {
		if len(l.values) == 0 {
			return pkgerrors.Newf(pkgerrors.CodeConfig, "%s must not be empty when generating transactions", l.name)
		}
	}
	return nil
}

func (g *Generator) chunk(r *rand.Rand, users []string) chunk {
	now := g.opts.Now
	windowStart := now.Add(-transactionWindowDays * 24 * time.Hour)

	var c chunk
	for _, user := range users {
		count := max(1, sampling.Poisson(r, meanTransactionsPerUser))
		for range count {
			txIndex := len(c.transactions)
			timestamp := sampling.DateBetween(r, windowStart, now)
			store := sampling.Choice(r, g.sales.StoreIDs)
			channel := sampling.Choice(r, g.sales.Channels)
			currency := sampling.Choice(r, g.sales.Currencies)
			payment := sampling.Choice(r, g.sales.PaymentMethods)

			total := decimal.Zero
			for range sampling.IntBetween(r, 1, maxItemsPerTransaction) {
				quantity := sampling.IntBetween(r, 1, maxQuantity)
				unit := decimal.NewFromFloat(sampling.Uniform(r, minUnitPrice, maxUnitPrice)).Round(2)
				discount := decimal.Zero
				if r.Float64() < discountProb {
					discount = unit.Mul(decimal.NewFromFloat(sampling.Uniform(r, 0, maxDiscountShare))).Round(2)
				}
				line := LineTotal(unit, discount, quantity)
				total = total.Add(line)

				product := g.product(r)
				c.items = append(c.items, []any{
					0,
					0,
					sampling.IntBetween(r, 1, maxProductID),
					product.Category,
					product.SubCategory,
					product.Type,
					product.Brand,
					product.Name,
					quantity,
					unit,
					discount,
					line,
				})
				c.itemTx = append(c.itemTx, txIndex)
			}

			c.transactions = append(c.transactions, []any{
				0,
				user,
				timestamp,
				total,
				currency,
				payment,
				store,
				channel,
			})
		}
	}
	return c
}

// LineTotal is (unit - discount/quantity) * quantity rounded to cents. The
// discount applies once per line, so this is unit*quantity - discount.
func LineTotal(unit, discount decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount).Round(2)
}

func (g *Generator) product(r *rand.Rand) Product {
	structure := g.products.Structure
	if structure.Len() == 0 {
		return Product{
			Category: "Generic",
			Type:     "Product",
			Brand:    "Brand",
			Name:     fmt.Sprintf("Generic Product %d", sampling.IntBetween(r, 1, genericProductVariants)),
		}
	}

	category := sampling.Choice(r, structure.Keys())
	subs, _ := structure.Get(category)
	sub := sampling.Choice(r, subs.Keys())
	types, _ := subs.Get(sub)
	productType := sampling.Choice(r, types)

	p := Product{Category: category, SubCategory: sub, Type: productType}
	brands := g.products.Brands
	if brands.Len() == 0 {
		p.Brand = "Generic Brand"
		p.Name = p.Brand + " " + productType
		return p
	}

	p.Brand = sampling.Choice(r, brands.Keys())
	if lines, _ := brands.Get(p.Brand); len(lines) > 0 {
		p.Name = fmt.Sprintf("%s %s %s", p.Brand, sampling.Choice(r, lines), productType)
	} else {
		p.Name = p.Brand + " " + productType
	}
	return p
}
