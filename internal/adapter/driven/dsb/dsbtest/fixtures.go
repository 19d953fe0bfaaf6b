package dsbtest

// Monday and Tuesday are two small monitor-style plans published on
// 14.07.2025 16:05.
var (
	Monday = Page{
		Title:     "Montag",
		Published: "14.07.2025 16:05",
		Name:      "monday.htm",
		HTML: `<html><body>
<div class="mon_head"><p>Stand: 14.07.2025 16:05</p></div>
<div class="mon_title">14.7.2025 Montag</div>
<table class="mon_list">
<tr class="list"><th>Stunde</th><th>Vertreter</th><th>Fach</th><th>Raum</th><th>Text</th></tr>
<tr class="list"><td class="list inline_header" colspan="5">7C</td></tr>
<tr class="list"><td>2</td><td>HUB</td><td>Bio</td><td>B12</td><td>Vertretung</td></tr>
</table></body></html>`,
	}

	Tuesday = Page{
		Title:     "Dienstag",
		Published: "14.07.2025 16:05",
		Name:      "tuesday.htm",
		HTML: `<html><body>
<div class="mon_head"><p>Stand: 14.07.2025 16:05</p></div>
<div class="mon_title">15.7.2025 Dienstag</div>
<table class="mon_list">
<tr class="list"><td class="list inline_header" colspan="5">10A</td></tr>
<tr class="list"><td>3 - 4</td><td>MUE</td><td>Mathe</td><td>R101</td><td>fällt aus</td></tr>
<tr class="list"><td class="list inline_header" colspan="5">10B</td></tr>
<tr class="list"><td>1</td><td>BAU</td><td>Sport</td><td>Halle</td><td></td></tr>
</table></body></html>`,
	}
)
