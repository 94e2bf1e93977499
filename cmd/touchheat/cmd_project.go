package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/touchheat/touchheat/internal/database"
)

var (
	projectName    string
	projectDomains []string
	projectDB      string
)

func init() {
	projectCmd.PersistentFlags().StringVar(&projectDB, "db", "", "SQLite database path (overrides config)")

	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "project name (required)")
	projectCreateCmd.Flags().StringSliceVar(&projectDomains, "domains", nil,
		"allowed ingest domains (empty = unrestricted)")
	_ = projectCreateCmd.MarkFlagRequired("name")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project and print its id and API key",
	RunE:  runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE:  runProjectList,
}

func openProjectDB() (*database.Database, error) {
	loader, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath := loader.Config().DatabasePath
	if projectDB != "" {
		dbPath = projectDB
	}
	return database.NewDatabase(dbPath)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	db, err := openProjectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	project, err := db.CreateProject(projectName, projectDomains)
	if err != nil {
		return err
	}
	fmt.Printf("id:      %s\n", project.ID)
	fmt.Printf("api_key: %s\n", project.APIKey)
	if len(project.AllowedDomains) > 0 {
		fmt.Printf("domains: %s\n", strings.Join(project.AllowedDomains, ", "))
	}
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	db, err := openProjectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := db.ListProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("no projects")
		return nil
	}
	for _, p := range projects {
		domains := "unrestricted"
		if len(p.AllowedDomains) > 0 {
			domains = strings.Join(p.AllowedDomains, ", ")
		}
		fmt.Printf("%s  %-20s  %s  %s\n", p.ID, p.Name, p.CreatedAt.Format("2006-01-02"), domains)
	}
	return nil
}
