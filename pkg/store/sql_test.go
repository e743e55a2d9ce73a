/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/gomega"
)

func mockSQLBackend(t *testing.T) (Backend, sqlmock.Sqlmock) {
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS identities").WillReturnResult(sqlmock.NewResult(0, 0))
	b, err := NewSQLBackend(db, "identities")
	Expect(err).ToNot(HaveOccurred())
	return b, mockDB
}

func TestSQLCreate(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectExec("INSERT INTO identities \\(id, entry\\) VALUES \\(\\$1, \\$2\\) ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("Farmer01", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.
		ExpectExec("INSERT INTO identities \\(id, entry\\) VALUES \\(\\$1, \\$2\\) ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("Farmer01", "{}").
		WillReturnResult(sqlmock.NewResult(0, 0))

	Expect(b.Create("Farmer01", []byte("{}"))).To(Succeed())
	Expect(b.Create("Farmer01", []byte("{}"))).To(Equal(ErrEntryExists))
	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLReplace(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectExec("INSERT INTO identities \\(id, entry\\) VALUES \\(\\$1, \\$2\\) ON CONFLICT \\(id\\) DO UPDATE SET entry = excluded.entry").
		WithArgs("Farmer01", `{"version":1}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	Expect(b.Replace("Farmer01", []byte(`{"version":1}`))).To(Succeed())
	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLGet(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectQuery("SELECT entry FROM identities WHERE id = \\$1").
		WithArgs("Farmer01").
		WillReturnRows(mockDB.NewRows([]string{"entry"}).AddRow(`{"version":1}`))
	mockDB.
		ExpectQuery("SELECT entry FROM identities WHERE id = \\$1").
		WithArgs("Farmer02").
		WillReturnError(sql.ErrNoRows)
	mockDB.
		ExpectQuery("SELECT entry FROM identities WHERE id = \\$1").
		WithArgs("Farmer03").
		WillReturnError(sql.ErrConnDone)

	content, err := b.Get("Farmer01")
	Expect(err).ToNot(HaveOccurred())
	Expect(string(content)).To(Equal(`{"version":1}`))

	_, err = b.Get("Farmer02")
	Expect(err).To(Equal(ErrEntryNotFound))

	_, err = b.Get("Farmer03")
	Expect(err).To(HaveOccurred())
	Expect(err).ToNot(Equal(ErrEntryNotFound))

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLExists(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectQuery("SELECT COUNT\\(\\*\\) FROM identities WHERE id = \\$1").
		WithArgs("Farmer01").
		WillReturnRows(mockDB.NewRows([]string{"count"}).AddRow(1))

	ok, err := b.Exists("Farmer01")
	Expect(err).ToNot(HaveOccurred())
	Expect(ok).To(BeTrue())
	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLRemove(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectExec("DELETE FROM identities WHERE id = \\$1").
		WithArgs("Farmer01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.
		ExpectExec("DELETE FROM identities WHERE id = \\$1").
		WithArgs("Farmer01").
		WillReturnResult(sqlmock.NewResult(0, 0))

	Expect(b.Remove("Farmer01")).To(Succeed())
	Expect(b.Remove("Farmer01")).To(Equal(ErrEntryNotFound))
	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLList(t *testing.T) {
	RegisterTestingT(t)
	b, mockDB := mockSQLBackend(t)

	mockDB.
		ExpectQuery("SELECT id FROM identities ORDER BY id").
		WillReturnRows(mockDB.NewRows([]string{"id"}).AddRow("Farmer01").AddRow("Lab01"))
	mockDB.ExpectClose()

	ids, err := b.List()
	Expect(err).ToNot(HaveOccurred())
	Expect(ids).To(Equal([]string{"Farmer01", "Lab01"}))
	Expect(b.Close()).To(Succeed())
	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
}

func TestSQLInvalidTable(t *testing.T) {
	RegisterTestingT(t)
	db, _, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	_, err = NewSQLBackend(db, "identities; DROP TABLE x")
	Expect(err).To(MatchError(ContainSubstring("invalid table name")))

	_, err = OpenSQLBackend("mysql", "", "identities", 0)
	Expect(err).To(MatchError(ContainSubstring("unsupported sql driver")))
}
