package report

import (
	"fmt"

	"github.com/smazurov/gigecam/pkg/genicam"
)

// LUT prints the contents of every lookup table, waiting for a key press
// before each one.
func (p *Printer) LUT(keys Keys) error {
	for _, sel := range p.q.Entries(genicam.LUTSelector) {
		p.printf("\nPress <Enter> to print %s Lookup table.\n", sel)
		if _, err := keys.Getch(); err != nil {
			return err
		}
		p.q.SetString(genicam.LUTSelector, sel)
		p.printf("\n------- Printing (%s) lookup table contents -----\n", sel)

		lo := p.q.Int(genicam.QueryMin, genicam.LUTIndex)
		hi := p.q.Int(genicam.QueryMax, genicam.LUTIndex)
		for j := lo; j <= hi; j++ {
			p.q.SetInt(genicam.LUTIndex, j)
			v := p.q.Int(genicam.QueryValue, genicam.LUTValue)
			if j%5 == 0 {
				p.printf("\n")
			}
			p.printf("%7s : %-6d", fmt.Sprintf("[%d]", j), v)
		}
	}
	return nil
}
