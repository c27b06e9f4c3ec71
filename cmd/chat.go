package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/engine"
	"github.com/garcomlabs/garcom/internal/intent"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Order from a demo menu in a local REPL (no WhatsApp, no database)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	menu := demoMenu()
	catalogs := catalog.NewMemoryStore()
	catalogs.Put(menu)

	registry := buildRegistry(cfg, logger)
	pol, err := buildPolicy(cfg, registry, logger)
	if err != nil {
		return err
	}
	g, err := initGenkit(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Provider:   newProvider(g, cfg, logger),
		Classifier: intent.KeywordClassifier{},
		Policy:     pol,
		Registry:   registry,
		Sessions:   session.NewMemoryStore(nil),
		Orders:     order.NewMemoryStore(nil),
		Catalog:    catalogs,
		Validator: &engine.FixedFeeValidator{
			Fee:        cfg.DeliveryFeeCents,
			ETAMinutes: cfg.DeliveryETAMinutes,
		},
		Behavior: cfg.Behavior,
		Language: cfg.Language,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	key := session.Key{RestaurantID: menu.RestaurantID, Phone: "repl"}

	fmt.Printf("Garçom demo (%s). Type your order, Ctrl+D to leave.\n\n", menu.RestaurantName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		turn := strings.TrimSpace(scanner.Text())
		if turn == "" {
			continue
		}

		result, err := eng.ProcessTurn(ctx, key, turn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", result.Reply)
		fmt.Printf("  [state: %s]\n\n", result.StateAfter)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println("\nAté à próxima!")
	return nil
}

// demoMenu is the built-in menu the REPL orders from.
func demoMenu() *catalog.Menu {
	pizzasID := uuid.New()
	drinksID := uuid.New()
	return &catalog.Menu{
		RestaurantID:   uuid.New(),
		RestaurantName: "Pizzaria Demo",
		Currency:       "€",
		Categories: []catalog.Category{
			{
				ID:   pizzasID,
				Name: "Pizzas",
				Products: []catalog.Product{
					{
						ID:         uuid.New(),
						CategoryID: pizzasID,
						Name:       "Pizza Margherita",
						Price:      950,
						Keywords:   []string{"margherita", "margarita"},
						Available:  true,
						Addons: []catalog.Addon{
							{ID: uuid.New(), Name: "Extra queijo", Price: 150, Available: true},
							{ID: uuid.New(), Name: "Azeitonas", Price: 100, Available: true},
						},
					},
					{
						ID:         uuid.New(),
						CategoryID: pizzasID,
						Name:       "Pizza Pepperoni",
						Price:      1150,
						Keywords:   []string{"pepperoni", "peperoni"},
						Available:  true,
					},
				},
			},
			{
				ID:   drinksID,
				Name: "Bebidas",
				Products: []catalog.Product{
					{
						ID:         uuid.New(),
						CategoryID: drinksID,
						Name:       "Coca-Cola",
						Price:      250,
						Keywords:   []string{"cola", "coca"},
						Available:  true,
					},
					{
						ID:         uuid.New(),
						CategoryID: drinksID,
						Name:       "Água das Pedras",
						Price:      200,
						Keywords:   []string{"agua", "pedras"},
						Available:  true,
					},
				},
			},
		},
	}
}
