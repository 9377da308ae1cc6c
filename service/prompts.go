package service

import (
	"fmt"
	"strings"

	"tarot-backend/models"
)

const readerPersona = `Você é Mestre Mazel, um tarólogo experiente, acolhedor e direto.
Responda sempre em português do Brasil, em tom místico mas claro, sem prometer certezas absolutas.`

// readingPrompt describes the spread for the interpreter
func readingPrompt(question string, cards []models.DrawnCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pergunta do consulente: %q\n\n", question)
	b.WriteString("Tiragem de três cartas:\n")
	for _, c := range cards {
		fmt.Fprintf(&b, "- %s: %s (%s)", c.Position.Label(), c.Name, c.Orientation())
		if len(c.Keywords) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(c.Keywords, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Interprete cada carta em sua posição e depois faça uma síntese que responda à pergunta.
Cartas invertidas indicam bloqueios ou energias internalizadas.
Use no máximo quatro parágrafos curtos e termine com um conselho prático.`)
	return b.String()
}

// horoscopePrompt asks for a daily horoscope; premium readers get the detailed sections
func horoscopePrompt(sign, birthDate string, premium bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escreva o horóscopo de hoje para o signo de %s (nascimento em %s).\n", sign, birthDate)
	if premium {
		b.WriteString(`Versão completa, com as seções:
**Visão Geral**, **Amor**, **Trabalho e Dinheiro**, **Saúde**, **Número da Sorte** e **Cor do Dia**.
Seja específico e profundo em cada seção.`)
	} else {
		b.WriteString(`Versão resumida: um único parágrafo de até quatro frases com a energia geral do dia.`)
	}
	return b.String()
}

// narrationText strips markdown emphasis so it is not read aloud
func narrationText(text string) string {
	replacer := strings.NewReplacer("**", "", "*", "", "#", "", "_", " ")
	return "Narre com voz calma, pausada e misteriosa: " + strings.TrimSpace(replacer.Replace(text))
}
