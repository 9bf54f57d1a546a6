package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cltv-predict/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open DSN mariadb:// ou mysql:// → format MySQL driver, postgres:// → lib/pq.
// Renvoie le nom du driver utilisé (pour les placeholders).
func Open(dsn string) (*sql.DB, string, error) {
	driver, native, err := resolveDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, native)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, driver, nil
}

func resolveDSN(dsn string) (driver, native string, err error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres, dsn, nil
	}
	native, err = toMySQLDSN(dsn)
	return DriverMySQL, native, err
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// transactionsQuery construit la requête de lecture des lignes de facture.
// Colonnes attendues : InvoiceNo, Quantity, InvoiceDate, UnitPrice, CustomerID, Country.
// Pas de filtre pays : les bornes d'outliers se calculent sur tous les pays.
func transactionsQuery(table string) (string, error) {
	if !tableNameRe.MatchString(table) {
		return "", fmt.Errorf("table invalide: %q", table)
	}
	return fmt.Sprintf(`
		SELECT InvoiceNo, Quantity, InvoiceDate, UnitPrice, CustomerID, Country
		FROM %s`, table), nil
}

// LoadTransactions lit toutes les lignes de facture de la table, tous pays confondus.
// Un CustomerID NULL donne CustomerValid=false ; le filtrage des lignes se fait ensuite dans prep.
func LoadTransactions(ctx context.Context, db *sql.DB, table string) ([]models.TransactionRecord, error) {
	q, err := transactionsQuery(table)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var (
		out      []models.TransactionRecord
		nullCust int
	)
	for rows.Next() {
		var (
			invoice    string
			qty        float64
			date       time.Time
			unitPrice  float64
			customerID sql.NullFloat64 // souvent stocké en DECIMAL/FLOAT dans les exports
			ctry       sql.NullString
		)
		if err := rows.Scan(&invoice, &qty, &date, &unitPrice, &customerID, &ctry); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t := models.TransactionRecord{
			InvoiceID:   strings.TrimSpace(invoice),
			InvoiceDate: date.UTC(),
			Quantity:    qty,
			UnitPrice:   unitPrice,
			Country:     ctry.String,
		}
		if customerID.Valid && customerID.Float64 >= 0 {
			t.CustomerID = uint64(customerID.Float64)
			t.CustomerValid = true
		} else {
			nullCust++
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] Lignes lues=%d, CustomerID NULL=%d", len(out), nullCust)
	return out, nil
}
