package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"bookshelf/internal/book"
	"bookshelf/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

var words = []string{
	"Shadow", "River", "Garden", "Winter", "Silence", "Harbor", "Lantern", "Orchard",
	"Compass", "Meadow", "Ember", "Horizon", "Thread", "Mirror", "Voyage", "Archive",
}

func main() {
	count := flag.Int("count", 100, "Number of books to insert")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	svc := book.NewService(book.NewPostgresRepo(pool, cfg.DBTimeout), nil)

	log.Printf("Inserting %d books...", *count)
	start := time.Now()
	for i := 0; i < *count; i++ {
		if _, err := svc.Create(ctx, book.CreateInput{Title: title(i)}); err != nil {
			log.Fatalf("Failed to insert book %d: %v", i+1, err)
		}
		if (i+1)%50 == 0 {
			log.Printf("Inserted %d/%d books", i+1, *count)
		}
	}

	books, err := svc.List(ctx)
	if err != nil {
		log.Fatalf("Failed to count books: %v", err)
	}
	log.Printf("Seed complete: inserted=%d total=%d duration_ms=%d", *count, len(books), time.Since(start).Milliseconds())
}

func title(i int) string {
	return fmt.Sprintf("The %s of the %s, vol. %d", words[rand.Intn(len(words))], words[rand.Intn(len(words))], i+1)
}
