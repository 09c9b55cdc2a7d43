package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/classtrack/attendance-api/internal/repository"
	"github.com/classtrack/attendance-api/internal/service"
	"github.com/classtrack/attendance-api/pkg/config"
	"github.com/classtrack/attendance-api/pkg/database"
)

// attendance-report prints the monthly attendance report for a month
// and optional class:
//
//	attendance-report 2025-01 [class]
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: attendance-report <YYYY-MM> [class]")
		os.Exit(1)
	}

	month, err := time.Parse("2006-01", os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid month format, expected YYYY-MM")
		os.Exit(1)
	}
	class := ""
	if len(os.Args) > 2 {
		class = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	svc := service.NewAttendanceService(attendanceRepo, studentRepo, nil, nil, nil, nil, 0)

	report, err := svc.MonthlyReport(context.Background(), month.Year(), int(month.Month()), class, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate report: %v\n", err)
		os.Exit(1)
	}

	label := class
	if label == "" {
		label = "ALL"
	}
	fmt.Printf("Attendance Report for %04d-%d Class: %s\n", report.Year, report.Month, label)

	for _, record := range report.Records {
		fmt.Printf("%s (%s) - Present: %d / %d (%.2f%%)\n",
			record.Student.Name,
			record.Student.Code,
			record.Present,
			record.Total,
			record.Percent,
		)
	}
}
