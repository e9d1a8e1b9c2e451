package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/database"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/handler"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
)

// Standalone notes API without auth, rate limiting or shares. Handy for
// local development and integration tests against the editor.
func main() {
	port := os.Getenv("NOTES_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Prefer a Mongo-backed store when MONGODB_URI is provided.
	var store kvstore.Store
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI != "" {
		client, err := database.ConnectMongo(context.Background(), mongoURI, 10*time.Second)
		if err != nil {
			log.Printf("warning: cannot connect to MongoDB (%v), using memory store", err)
			store = kvstore.NewMemory()
		} else {
			dbName := os.Getenv("MONGODB_DATABASE")
			if dbName == "" {
				dbName = "cloudnote"
			}
			store = kvstore.NewMongo(client.Database(dbName).Collection("kv"))
		}
	} else {
		store = kvstore.NewMemory()
	}

	svc := service.New(guard.New(store))
	handler.RegisterNoteRoutes(r, svc)

	log.Printf("notes service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
