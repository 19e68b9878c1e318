package dynalink_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nisimpson/dynalink"
	"github.com/nisimpson/dynalink/dynamock"
)

type Author struct {
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Books []Book `dynamodbav:"books"`
}

type Book struct {
	ID       string `dynamodbav:"id"`
	Title    string `dynamodbav:"title"`
	AuthorID string `dynamodbav:"authorId"`
}

func libraryTypes() []dynalink.EntityType {
	return []dynalink.EntityType{
		{
			Name:       "Author",
			Attributes: []dynalink.Attribute{{Name: "name"}},
			Relationships: []dynalink.Relationship{
				dynalink.HasMany{Name: "books", Target: "Book", ForeignKey: "authorId"},
			},
		},
		{
			Name: "Book",
			Attributes: []dynalink.Attribute{
				{Name: "title"},
				{Name: "authorId", Nullable: true},
			},
			Relationships: []dynalink.Relationship{
				dynalink.BelongsTo{Name: "author", Target: "Author", ForeignKey: "authorId"},
			},
		},
	}
}

// Example demonstrates creating related entities and reading them back with includes.
func Example() {
	ctx := context.Background()

	// An in-memory table stands in for DynamoDB
	table := dynalink.NewTable("library")
	registry, err := dynalink.NewRegistry(table, libraryTypes()...)
	if err != nil {
		log.Fatal(err)
	}
	mapper := dynalink.New(dynamock.NewMemoryClient(table), registry)

	if _, err := mapper.Create(ctx, "Author", map[string]any{"name": "Ursula"}, dynalink.WithID("A1")); err != nil {
		log.Fatal(err)
	}

	// Creating a book links it into the author's partition
	for _, title := range []string{"Earthsea", "The Dispossessed"} {
		book := Book{Title: title, AuthorID: "A1"}
		id := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
		if _, err := mapper.Create(ctx, "Book", book, dynalink.WithID(id)); err != nil {
			log.Fatal(err)
		}
	}

	entity, err := mapper.FindByID(ctx, "Author", "A1", dynalink.Include("books"))
	if err != nil {
		log.Fatal(err)
	}

	var author Author
	if err := entity.Unmarshal(&author); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s wrote %d books\n", author.Name, len(author.Books))
	for _, book := range author.Books {
		fmt.Printf("- %s (%s)\n", book.Title, book.ID)
	}

	// Output:
	// Ursula wrote 2 books
	// - Earthsea (earthsea)
	// - The Dispossessed (the-dispossessed)
}

// Example_conditionFailure demonstrates the error returned when a foreign key points
// at a missing entity.
func Example_conditionFailure() {
	ctx := context.Background()

	table := dynalink.NewTable("library")
	registry, err := dynalink.NewRegistry(table, libraryTypes()...)
	if err != nil {
		log.Fatal(err)
	}
	mapper := dynalink.New(dynamock.NewMemoryClient(table), registry)

	_, err = mapper.Create(ctx, "Book", Book{Title: "Orphan", AuthorID: "A404"})

	var canceled *dynalink.TransactionCanceledError
	if errors.As(err, &canceled) {
		for _, reason := range canceled.Errors {
			fmt.Println(reason)
		}
	}

	// Output:
	// Author with ID 'A404' does not exist
}

// Example_loadRegistry demonstrates describing the schema in YAML.
func Example_loadRegistry() {
	registry, err := dynalink.LoadRegistry(strings.NewReader(`
table:
  name: library
  keyDelimiter: "|"
entities:
  - name: Author
    attributes:
      - name: name
    relationships:
      - kind: hasMany
        name: books
        target: Book
        foreignKey: authorId
  - name: Book
    attributes:
      - name: authorId
        nullable: true
    relationships:
      - kind: belongsTo
        name: author
        target: Author
        foreignKey: authorId
`))
	if err != nil {
		log.Fatal(err)
	}

	table := registry.Table()
	fmt.Println(registry.EntityTypes())
	fmt.Println(table.Key("Author", "A1"))

	// Output:
	// [Author Book]
	// Author|A1
}
