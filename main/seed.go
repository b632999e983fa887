package main

import (
	"log"

	"cottage/db"
)

// seedDefaults populates categories and the resume row on a fresh
// database. Best-effort: a seeding failure is logged, not fatal.
func seedDefaults() {
	var count int
	if err := db.DB.QueryRow(`SELECT COUNT(id) FROM categories`).Scan(&count); err != nil {
		log.Println("seed: category count failed:", err)
		return
	}
	if count == 0 {
		defaults := [][2]string{
			{"General", "general"},
			{"Announcements", "announcements"},
			{"Show & Tell", "show-and-tell"},
		}
		for _, cat := range defaults {
			if _, err := db.DB.Exec(`INSERT INTO categories (name, slug) VALUES (?, ?)`, cat[0], cat[1]); err != nil {
				log.Println("seed: category insert failed:", err)
			}
		}
	}

	if err := db.DB.QueryRow(`SELECT COUNT(id) FROM resume`).Scan(&count); err != nil {
		log.Println("seed: resume count failed:", err)
		return
	}
	if count == 0 {
		content := "# Your Name\n\nAdd your resume content here (Markdown supported)."
		if _, err := db.DB.Exec(`INSERT INTO resume (content) VALUES (?)`, content); err != nil {
			log.Println("seed: resume insert failed:", err)
		}
	}
}
