package service

import "strings"

var unidades = []string{
	"CERO", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO",
	"NUEVE", "DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE",
	"DIECISÉIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE", "VEINTE",
	"VEINTIUNO", "VEINTIDÓS", "VEINTITRÉS", "VEINTICUATRO", "VEINTICINCO",
	"VEINTISÉIS", "VEINTISIETE", "VEINTIOCHO", "VEINTINUEVE",
}

var decenas = []string{
	"", "", "", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA",
	"OCHENTA", "NOVENTA",
}

var centenas = []string{
	"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS",
	"SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS",
}

// NumeroALetras renders an amount in Bolivian legal Spanish, uppercase.
// Supported range is 0 to 999,999; any value of one million or more
// collapses to the literal "UN MILLÓN" regardless of magnitude.
func NumeroALetras(n int64) string {
	if n <= 0 {
		return "CERO"
	}
	if n >= 1_000_000 {
		return "UN MILLÓN"
	}

	miles := n / 1000
	resto := n % 1000

	var parts []string
	if miles == 1 {
		parts = append(parts, "MIL")
	} else if miles > 1 {
		parts = append(parts, apocopar(hastaNovecientos(int(miles)))+" MIL")
	}
	if resto > 0 {
		parts = append(parts, hastaNovecientos(int(resto)))
	}
	return strings.Join(parts, " ")
}

// hastaNovecientos converts 1..999
func hastaNovecientos(n int) string {
	if n == 100 {
		return "CIEN"
	}

	c := n / 100
	r := n % 100

	var parts []string
	if c > 0 {
		parts = append(parts, centenas[c])
	}
	if r > 0 {
		if r < 30 {
			parts = append(parts, unidades[r])
		} else {
			d := r / 10
			u := r % 10
			s := decenas[d]
			if u > 0 {
				s += " Y " + unidades[u]
			}
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// apocopar shortens a trailing "uno" before a noun: VEINTIUNO MIL is
// rendered VEINTIÚN MIL and TREINTA Y UNO MIL as TREINTA Y UN MIL
func apocopar(s string) string {
	if strings.HasSuffix(s, "VEINTIUNO") {
		return strings.TrimSuffix(s, "VEINTIUNO") + "VEINTIÚN"
	}
	if strings.HasSuffix(s, "UNO") {
		return strings.TrimSuffix(s, "UNO") + "UN"
	}
	return s
}
