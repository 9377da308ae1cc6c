package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"tarot-backend/models"
	"tarot-backend/repository"
	"tarot-backend/service"

	"github.com/joho/godotenv"
)

// Registers an installation for manual API testing and prints its credentials.
// Pass -premium to start it with permanent premium.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file found, using environment variables: %v", err)
	}

	premium := len(os.Args) > 1 && os.Args[1] == "-premium"

	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = string(repository.DriverPostgres)
	}

	ctx := context.Background()
	stores, err := repository.NewStores(ctx, repository.StoresConfig{
		Driver:      repository.Driver(driver),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer stores.Close()

	installs := service.NewInstallationService(service.InstallationWithStore(stores.Installations))
	reg, err := installs.Register(ctx)
	if err != nil {
		log.Fatalf("Failed to create installation: %v", err)
	}

	if premium {
		if _, err := stores.Preferences.Save(ctx, reg.InstallationID, models.PreferencesPatch{
			IsPremium:          models.Bool(true),
			ClearPremiumExpiry: true,
		}); err != nil {
			log.Fatalf("Failed to grant premium: %v", err)
		}
	}

	fmt.Printf("✅ Installation created successfully!\n")
	fmt.Printf("   ID: %s\n", reg.InstallationID)
	fmt.Printf("   Token: %s\n", reg.Token)
	fmt.Printf("   Premium: %v\n", premium)
	fmt.Printf("   Headers: X-Installation-ID: %s / Authorization: Bearer %s\n", reg.InstallationID, reg.Token)
}
