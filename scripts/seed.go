//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/database"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/internal/folders"
	"github.com/hugh/easy-diagrams/pkg/config"
	"github.com/hugh/easy-diagrams/pkg/util"
	"github.com/joho/godotenv"
)

var samples = []struct {
	title string
	code  string
}{
	{"Login sequence", "@startuml\nactor User\nUser -> Server: GET /login/google\nServer --> User: 302 to provider\n@enduml"},
	{"Domain model", "@startuml\nclass Organization\nclass Folder\nclass Diagram\nOrganization \"1\" *-- \"*\" Folder\nFolder \"1\" o-- \"*\" Diagram\n@enduml"},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	email := os.Getenv("SEED_EMAIL")
	if email == "" {
		email = auth.DummyEmail
	}

	ctx := context.Background()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, logger)

	resp, err := authService.Login(ctx, email)
	if err != nil {
		log.Fatalf("failed to log in %s: %v", email, err)
	}
	if !resp.Created {
		fmt.Printf("User already exists: %s\n", email)
		return
	}

	folder, err := folders.NewRepository(db, resp.OrganizationID, logger).Create(ctx, "Examples", nil)
	if err != nil {
		log.Fatalf("failed to create folder: %v", err)
	}

	renders := diagrams.NewRenderService(db, diagrams.NewPlantUMLRenderer(cfg.Render, logger), nil, logger)
	repo := diagrams.NewRepository(db, resp.OrganizationID, renders, nil, logger)
	for _, s := range samples {
		id, err := repo.Create(ctx, &folder.ID)
		if err != nil {
			log.Fatalf("failed to create diagram: %v", err)
		}
		title, code := s.title, s.code
		d, err := repo.Edit(ctx, id, diagrams.DiagramEdit{Title: &title, Code: &code})
		if err != nil {
			log.Fatalf("failed to edit diagram: %v", err)
		}
		fmt.Printf("Diagram %s (%s): %s\n", d.ID, title, d.RenderStatus())
	}

	fmt.Printf("Seeded user: %s\n", email)
	fmt.Printf("Organization: %s\n", resp.OrganizationID)
	fmt.Printf("Token: %s\n", resp.Token)
}
