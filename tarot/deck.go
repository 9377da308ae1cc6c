package tarot

import (
	"fmt"

	"tarot-backend/models"
)

// DeckSize is the number of cards in a full deck
const DeckSize = 78

var majorArcana = []string{
	"O Louco", "O Mago", "A Sacerdotisa", "A Imperatriz", "O Imperador",
	"O Hierofante", "Os Enamorados", "O Carro", "A Força", "O Eremita",
	"A Roda da Fortuna", "A Justiça", "O Enforcado", "A Morte", "A Temperança",
	"O Diabo", "A Torre", "A Estrela", "A Lua", "O Sol", "O Julgamento", "O Mundo",
}

type suit struct {
	name string
	code string
}

var suits = []suit{
	{name: "Paus", code: "wa"},
	{name: "Copas", code: "cu"},
	{name: "Espadas", code: "sw"},
	{name: "Ouros", code: "pe"},
}

var ranks = []string{
	"Ás", "2", "3", "4", "5", "6", "7", "8", "9", "10",
	"Valete", "Cavaleiro", "Rainha", "Rei",
}

var deck = buildDeck()

func buildDeck() []models.TarotCard {
	cards := make([]models.TarotCard, 0, DeckSize)

	for i, name := range majorArcana {
		cards = append(cards, models.TarotCard{
			ID:        fmt.Sprintf("major-%d", i),
			Name:      name,
			Arcana:    models.ArcanaMajor,
			Keywords:  []string{"Arquétipo", "Jornada", "Destino"},
			ImageCode: fmt.Sprintf("ar%02d", i),
		})
	}

	for _, s := range suits {
		for i, rank := range ranks {
			cards = append(cards, models.TarotCard{
				ID:        fmt.Sprintf("minor-%s-%d", s.code, i+1),
				Name:      fmt.Sprintf("%s de %s", rank, s.name),
				Arcana:    models.ArcanaMinor,
				Suit:      s.name,
				Keywords:  []string{s.name, "Cotidiano"},
				ImageCode: fmt.Sprintf("%s%02d", s.code, i+1),
			})
		}
	}

	return cards
}

// Deck returns a copy of the full 78-card deck
func Deck() []models.TarotCard {
	out := make([]models.TarotCard, len(deck))
	copy(out, deck)
	return out
}

// CardByID looks a card up by its ID
func CardByID(id string) (models.TarotCard, bool) {
	for _, c := range deck {
		if c.ID == id {
			return c, true
		}
	}
	return models.TarotCard{}, false
}

// ImageURLs returns the ordered candidate image locations for a card.
// Clients try them in order and fall back to a placeholder.
func ImageURLs(card models.TarotCard) []string {
	return []string{
		fmt.Sprintf("https://wsrv.nl/?url=sacred-texts.com/tarot/pkt/img/%s.jpg", card.ImageCode),
		fmt.Sprintf("https://cdn.jsdelivr.net/gh/tindogg/tarot-api@master/static/cards/%s.jpg", card.ImageCode),
		fmt.Sprintf("https://raw.githubusercontent.com/ekelen/tarot-api/master/static/cards/%s.jpg", card.ImageCode),
	}
}
