package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"coderooms/app"
)

func main() {
	server := app.NewServer()

	go func() {
		if err := server.Start(""); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := server.Close(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
