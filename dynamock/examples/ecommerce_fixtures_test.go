package examples

import (
	"github.com/nisimpson/dynalink"
)

// Schema of the e-commerce fixtures: customers place orders, orders contain products,
// and products are filed under categories.
func ecommerceTypes() []dynalink.EntityType {
	return []dynalink.EntityType{
		{
			Name:       "Customer",
			Attributes: []dynalink.Attribute{{Name: "email"}},
			Relationships: []dynalink.Relationship{
				dynalink.HasMany{Name: "orders", Target: "Order", ForeignKey: "customerId"},
			},
		},
		{
			Name: "Order",
			Attributes: []dynalink.Attribute{
				{Name: "customerId"},
				{Name: "status", Nullable: true},
			},
			Relationships: []dynalink.Relationship{
				dynalink.BelongsTo{Name: "customer", Target: "Customer", ForeignKey: "customerId"},
				dynalink.HasAndBelongsToMany{Name: "products", Target: "Product", JoinTable: "OrderLine"},
			},
		},
		{
			Name: "Product",
			Attributes: []dynalink.Attribute{
				{Name: "name"},
				{Name: "price"},
				{Name: "categoryId", Nullable: true},
			},
			Relationships: []dynalink.Relationship{
				dynalink.BelongsTo{Name: "category", Target: "Category", ForeignKey: "categoryId"},
				dynalink.HasAndBelongsToMany{Name: "orders", Target: "Order", JoinTable: "OrderLine"},
			},
		},
		{
			Name:       "Category",
			Attributes: []dynalink.Attribute{{Name: "label"}},
			Relationships: []dynalink.Relationship{
				dynalink.HasMany{Name: "products", Target: "Product", ForeignKey: "categoryId"},
			},
		},
	}
}

// Product is the application view of a product row.
type Product struct {
	ID         string `dynamodbav:"id,omitempty"`
	Name       string `dynamodbav:"name"`
	Price      int    `dynamodbav:"price"`
	CategoryID string `dynamodbav:"categoryId,omitempty"`
}

// ProductBuilder provides a fluent API for building test products.
type ProductBuilder struct {
	product Product
}

// NewProduct creates a new product builder.
func NewProduct() *ProductBuilder {
	return &ProductBuilder{}
}

// WithID sets the product ID.
func (b *ProductBuilder) WithID(id string) *ProductBuilder {
	b.product.ID = id
	return b
}

// WithCategory files the product under a category.
func (b *ProductBuilder) WithCategory(categoryID string) *ProductBuilder {
	b.product.CategoryID = categoryID
	return b
}

// WithPrice sets the product price.
func (b *ProductBuilder) WithPrice(price int) *ProductBuilder {
	b.product.Price = price
	return b
}

// WithName sets the product name.
func (b *ProductBuilder) WithName(name string) *ProductBuilder {
	b.product.Name = name
	return b
}

// Build returns the product.
func (b *ProductBuilder) Build() Product {
	return b.product
}

// Order is the application view of an order, with its included relationships.
type Order struct {
	ID         string    `dynamodbav:"id,omitempty"`
	CustomerID string    `dynamodbav:"customerId"`
	Status     string    `dynamodbav:"status,omitempty"`
	Products   []Product `dynamodbav:"products,omitempty"`
}

// OrderBuilder provides a fluent API for building test orders.
type OrderBuilder struct {
	order      Order
	productIDs []string
}

// NewOrder creates a new order builder.
func NewOrder() *OrderBuilder {
	return &OrderBuilder{order: Order{Status: "pending"}}
}

// WithID sets the order ID.
func (b *OrderBuilder) WithID(id string) *OrderBuilder {
	b.order.ID = id
	return b
}

// WithCustomerID sets the customer placing the order.
func (b *OrderBuilder) WithCustomerID(customerID string) *OrderBuilder {
	b.order.CustomerID = customerID
	return b
}

// WithProducts adds products to link once the order exists.
func (b *OrderBuilder) WithProducts(productIDs ...string) *OrderBuilder {
	b.productIDs = append(b.productIDs, productIDs...)
	return b
}

// Build returns the order and the products to link to it.
func (b *OrderBuilder) Build() (Order, []string) {
	return b.order, b.productIDs
}
