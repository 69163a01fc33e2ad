package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"peerbay/backend/internal/config"
	"peerbay/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "block":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin block <user_id> [duration_in_hours]")
			os.Exit(1)
		}
		userID := os.Args[2]
		var duration int
		if len(os.Args) > 3 {
			var err error
			duration, err = strconv.Atoi(os.Args[3])
			if err != nil {
				fmt.Println("Invalid duration. Please provide an integer.")
				os.Exit(1)
			}
		}
		if err := blockUser(storageSvc, userID, duration); err != nil {
			log.Fatalf("Error blocking user: %v", err)
		}
		fmt.Printf("User %s has been blocked.\n", userID)
	case "unblock":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin unblock <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		if err := unblockUser(storageSvc, userID); err != nil {
			log.Fatalf("Error unblocking user: %v", err)
		}
		fmt.Printf("User %s has been unblocked.\n", userID)
	case "calls":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin calls <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		if err := printCallHistory(storageSvc, userID); err != nil {
			log.Fatalf("Error listing calls: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func blockUser(s storage.Storage, userID string, duration int) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}
	user.IsBlocked = true
	if duration > 0 {
		user.BlockEndTime = time.Now().Add(time.Duration(duration) * time.Hour).Unix()
	}
	return s.UpdateUser(user)
}

func unblockUser(s storage.Storage, userID string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}
	user.IsBlocked = false
	user.BlockEndTime = 0
	return s.UpdateUser(user)
}

func printCallHistory(s storage.Storage, userID string) error {
	recs, err := s.ListCallRecords(userID, time.Now().Add(-config.HistoryRetention))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fmt.Printf("%s  %s -> %s  %s/%s  %ds\n",
			rec.EndedAt.Format(time.RFC3339), rec.CallerID, rec.CalleeID,
			rec.MediaKind, rec.Status, rec.DurationSec)
	}
	fmt.Printf("%d calls in the last %s.\n", len(recs), config.HistoryRetention)
	return nil
}
