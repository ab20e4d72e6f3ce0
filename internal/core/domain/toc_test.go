package domain

import "testing"

func TestLooksLikeTOCHeaderPhrase(t *testing.T) {
	content := "Table des matières\nQuelques lignes\nSans numéros de page"
	if !LooksLikeTOC(content, DefaultTOCLineFraction) {
		t.Fatal("header phrase not detected")
	}
}

func TestLooksLikeTOCNumberedLines(t *testing.T) {
	content := `Introduction .......... 3
Chapitre 1 - Champ d'application 5
Chapitre 2 - Signalisation 8
Annexes 12`
	if !LooksLikeTOC(content, DefaultTOCLineFraction) {
		t.Fatal("numbered-line layout not detected")
	}
}

func TestLooksLikeTOCRejectsProse(t *testing.T) {
	content := `L'entrepreneur introduit sa demande au moins trente jours avant.
La redevance est calculée par mètre carré occupé.
Les chantiers de type D font l'objet d'un état des lieux.`
	if LooksLikeTOC(content, DefaultTOCLineFraction) {
		t.Fatal("prose misclassified as TOC")
	}
}

func TestLooksLikeTOCVersionNumbersDoNotCount(t *testing.T) {
	// Section references like "2.1" end in a digit but are glued to the dot,
	// unlike a standalone page number.
	content := `Le présent règlement remplace la version 1.2
conformément à l'article 4.1
et à l'annexe technique 7.3`
	if LooksLikeTOC(content, DefaultTOCLineFraction) {
		t.Fatal("dotted section numbers misclassified as page numbers")
	}
}

func TestLooksLikeTOCTooShort(t *testing.T) {
	if LooksLikeTOC("Annexe 1\nAnnexe 2", DefaultTOCLineFraction) {
		t.Fatal("two-line chunk should never classify as TOC")
	}
}

func TestPageRangeLabel(t *testing.T) {
	cases := []struct {
		in   PageRange
		want string
	}{
		{PageRange{Start: 4, End: 4}, "p. 4"},
		{PageRange{Start: 4, End: 6}, "p. 4-6"},
		{PageRange{}, ""},
		{PageRange{Start: 6, End: 4}, ""},
	}
	for _, tc := range cases {
		if got := tc.in.Label(); got != tc.want {
			t.Fatalf("Label(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
