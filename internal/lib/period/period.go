// Package period разбирает строки периода в формате ISO-8601 ("P7D", "P1M",
// "P1Y2M3D") и переводит их в целое число дней по упрощённой календарной
// модели: месяц равен 30 дням, год — 12 таким месяцам, неделя — 7 дням.
// Модель намеренно неточная и должна воспроизводиться байт в байт:
// заменять её честной календарной арифметикой нельзя, иначе сроки действия
// покупок разойдутся с уже выданными правами доступа.
package period

import (
	"fmt"
	"strconv"
	"strings"
)

// Period разложение периода на календарные компоненты.
type Period struct {
	Years  int
	Months int
	Days   int
}

// Parse разбирает строку вида PnYnMnWnD. Компоненты необязательны, но
// обязан присутствовать хотя бы один; недели при разборе сразу
// переводятся в дни.
func Parse(s string) (Period, error) {
	const op = "period.Parse"

	rest, ok := strings.CutPrefix(s, "P")
	if !ok || rest == "" {
		return Period{}, fmt.Errorf("%s: invalid period %q", op, s)
	}

	var p Period
	seen := map[byte]bool{}
	num := ""
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c >= '0' && c <= '9' {
			num += string(c)
			continue
		}
		if num == "" || seen[c] {
			return Period{}, fmt.Errorf("%s: invalid period %q", op, s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return Period{}, fmt.Errorf("%s: %w", op, err)
		}
		switch c {
		case 'Y':
			p.Years = n
		case 'M':
			p.Months = n
		case 'W':
			p.Days += n * 7
		case 'D':
			p.Days += n
		default:
			return Period{}, fmt.Errorf("%s: invalid period %q", op, s)
		}
		seen[c] = true
		num = ""
	}
	if num != "" {
		return Period{}, fmt.Errorf("%s: invalid period %q", op, s)
	}
	return p, nil
}

// TotalDays переводит период в целое число дней упрощённой модели.
func (p Period) TotalDays() int {
	return p.Years*12*30 + p.Months*30 + p.Days
}
