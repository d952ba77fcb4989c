package remote

import (
	"log"

	es "github.com/elastic/go-elasticsearch/v8"
)

func Connect(url string) *es.Client {
	cfg := es.Config{
		Addresses: []string{url},
	}
	client, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("❌ failed to build directory client: %v", err)
	}
	log.Println("✅ Remote directory client ready")
	return client
}
