package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/eternisai/devotional-push/internal/webpush"
)

func main() {
	var (
		subject  = flag.String("subject", "", "Contact URI for push services (mailto: or https:)")
		showHelp = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *showHelp || *subject == "" {
		fmt.Println("VAPID Key Generator")
		fmt.Println("Usage: go run ./cmd/vapid-keygen -subject mailto:you@example.com")
		fmt.Println("")
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	keys, err := webpush.GenerateVapidKeys(*subject)
	if err != nil {
		log.Fatalf("Failed to generate VAPID keys: %v", err)
	}

	// Round-trip through the signer so a broken pair is never printed.
	if _, err := webpush.NewVapidSigner(keys); err != nil {
		log.Fatalf("Generated keys failed validation: %v", err)
	}

	fmt.Println("# Add to your .env")
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
	fmt.Printf("VAPID_SUBJECT=%s\n", keys.Subject)
}
